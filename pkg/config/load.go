// Package config loads the engine's YAML service configuration.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/jetsonsystems/mediamanager/pkg/common"
)

// Config is the top-level service configuration file shape.
type Config struct {
	Store    StoreConfig    `json:"store"`
	Probe    ProbeConfig    `json:"probe"`
	Import   ImportDefaults `json:"import"`
	LogLevel string         `json:"logLevel"`
}

// StoreConfig points the Store Adapter at the document store.
type StoreConfig struct {
	BaseURL  string `json:"baseURL"`
	Database string `json:"database"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ProbeConfig configures the external image tool wrapper.
type ProbeConfig struct {
	// Binary is the external tool's executable name or path, e.g. "gm".
	Binary string `json:"binary"`
	// WorkDir is where Pass-1/Pass-2 temp files are written.
	WorkDir string `json:"workDir"`
}

// ImportDefaults seeds common.ImportOptions for imports that don't
// override them explicitly.
type ImportDefaults struct {
	NumJobs            int                  `json:"numJobs"`
	ToProcessBatchSize int                  `json:"toProcessBatchSize"`
	DesiredVariants    []common.VariantSpec `json:"desiredVariants"`
	AllowedMimeTypes   []string             `json:"allowedMimeTypes"`
}

// Load reads, YAML-decodes, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, common.Wrap(common.KindInvalidConfig, err, "reading config %s", path)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, common.Wrap(common.KindInvalidConfig, err, "yaml to json")
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewBuffer(jsonData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, common.Wrap(common.KindInvalidConfig, err, "decode config")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Store.BaseURL == "" {
		return common.New(common.KindInvalidConfig, "store.baseURL is required")
	}
	if c.Store.Database == "" {
		return common.New(common.KindInvalidConfig, "store.database is required")
	}
	if c.Probe.Binary == "" {
		c.Probe.Binary = "gm"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}
