/*
Loads the scenes listed in a config file into the software ray tracing backend.
Without a config a demo scene is written to a temporary directory and loaded instead.
*/
package main

import (
	"image/png"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "TOML or YAML application config")
	logLevel := pflag.StringP("log-level", "l", "", "overrides the configured log level")
	demoDir := pflag.String("demo-dir", "", "where the demo scene is written when no config is given")
	preview := pflag.StringP("preview", "p", "", "traces the loaded scene into this PNG")
	previewWidth := pflag.Int("preview-width", 320, "preview width in pixels")
	previewHeight := pflag.Int("preview-height", 180, "preview height in pixels")
	pflag.Parse()

	if *configPath == "" {
		dir := *demoDir
		if dir == "" {
			tmp, err := os.MkdirTemp("", "prism-demo-")
			if err != nil {
				core.LogFatal("failed to create demo directory: %s", err)
			}
			defer os.RemoveAll(tmp)
			dir = tmp
		}
		path, err := testbed.WriteDemo(dir)
		if err != nil {
			core.LogFatal("failed to write demo scene: %s", err)
		}
		*configPath = path
	}

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("%+v", err)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}

	e, err := engine.New(config)
	if err != nil {
		core.LogFatal("%+v", err)
	}
	if err := e.Initialize(); err != nil {
		core.LogFatal("%+v", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		_ = e.Shutdown()
		os.Exit(1)
	}()

	if err := e.Run(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%+v", err)
	}
	if *preview != "" {
		if err := writePreview(e, *preview, *previewWidth, *previewHeight); err != nil {
			_ = e.Shutdown()
			core.LogFatal("%+v", err)
		}
	}
	if err := e.Shutdown(); err != nil {
		core.LogFatal("%+v", err)
	}
}

func writePreview(e *engine.Engine, path string, width, height int) error {
	cam, err := e.PreviewCamera()
	if err != nil {
		return err
	}
	img, err := e.RenderPreview(cam, width, height)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	core.LogInfo("preview written to '%s'", path)
	return nil
}
