// Package config holds the immutable server options. Options are set once
// at construction from defaults and an optional YAML file; nothing mutates
// them at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"membank/internal/security"

	"gopkg.in/yaml.v3"
)

// Options configures a protocol server instance.
type Options struct {
	// Port is the TCP port the HTTP listener binds.
	Port int `yaml:"port"`
	// AllowedOrigins is the fixed allow-list checked against the Origin
	// header of incoming streaming connections.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// DataDir is where the document store keeps its database.
	DataDir string `yaml:"data_dir"`
	// SeedDefaults populates missing documents with starter templates.
	SeedDefaults bool `yaml:"seed_defaults"`
	// Verbose enables info-level logging.
	Verbose bool `yaml:"verbose"`
	// Platform names the embedding host, e.g. "vscode" or "standalone".
	Platform string `yaml:"platform"`
	// MaxContentBytes caps document content accepted by the validation gate.
	MaxContentBytes int `yaml:"max_content_bytes"`
	// Security configures the operation policy.
	Security security.Config `yaml:"security"`
}

// Default returns the options used when no config file is present.
func Default() Options {
	home, _ := os.UserHomeDir()
	return Options{
		Port:            7331,
		AllowedOrigins:  []string{"vscode-webview://*", "http://localhost", "http://127.0.0.1"},
		DataDir:         filepath.Join(home, ".membank"),
		SeedDefaults:    true,
		Platform:        "standalone",
		MaxContentBytes: 1 << 20,
		Security:        security.DefaultConfig(),
	}
}

// Load reads options from a YAML file layered over the defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate rejects options that cannot produce a working server.
func (o Options) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", o.Port)
	}
	if o.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if len(o.AllowedOrigins) == 0 {
		return fmt.Errorf("config: allowed_origins must not be empty")
	}
	if o.MaxContentBytes < 0 {
		return fmt.Errorf("config: max_content_bytes must not be negative")
	}
	return nil
}
