package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"gopkg.in/yaml.v3"
)

const (
	DefaultApplicationName = "Prism"
	DefaultJobQueueSize    = 256
	maxJobWorkers          = 64
	maxJobQueueSize        = 1 << 16
)

// LoadConfig reads a TOML or YAML application config, picked by file extension.
// A relative asset base path is resolved against the config file's directory.
func LoadConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config '%s'", path)
	}

	config := &ApplicationConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		return nil, errors.Errorf("unsupported config format '%s'", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config '%s'", path)
	}

	if config.AssetBasePath == "" {
		config.AssetBasePath = filepath.Dir(path)
	} else if !filepath.IsAbs(config.AssetBasePath) {
		config.AssetBasePath = filepath.Join(filepath.Dir(path), config.AssetBasePath)
	}
	config.Normalize()
	return config, nil
}

// Normalize fills defaults and clamps the worker settings.
func (c *ApplicationConfig) Normalize() {
	if c.Name == "" {
		c.Name = DefaultApplicationName
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Renderer == "" {
		c.Renderer = "software"
	}
	if c.JobWorkers == 0 {
		c.JobWorkers = runtime.NumCPU()
	}
	c.JobWorkers = mathx.Clamp(c.JobWorkers, 1, maxJobWorkers)
	if c.JobQueueSize == 0 {
		c.JobQueueSize = DefaultJobQueueSize
	}
	c.JobQueueSize = mathx.Clamp(c.JobQueueSize, 0, maxJobQueueSize)
}

// EntityPath resolves an entity path against the asset base path.
func (c *ApplicationConfig) EntityPath(ec *EntityConfig) string {
	if filepath.IsAbs(ec.Path) || c.AssetBasePath == "" {
		return ec.Path
	}
	return filepath.Join(c.AssetBasePath, ec.Path)
}
