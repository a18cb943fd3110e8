//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Writes the demo scene into demo/ and loads it.
func (Run) Demo() error {
	mg.Deps(Build.Binary)
	fmt.Println("Run demo...")
	if _, err := executeCmd("bin/prism", withArgs("--demo-dir", "demo", "--log-level", "debug"), withStream()); err != nil {
		return err
	}
	return nil
}

// Loads the scenes listed in prism.toml.
func (Run) Config() error {
	mg.Deps(Build.Binary)
	if _, err := executeCmd("bin/prism", withArgs("--config", "prism.toml"), withStream()); err != nil {
		return err
	}
	return nil
}
