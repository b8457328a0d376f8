// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package config loads the settings of the twoway command.
//
// Settings come from, in increasing order of precedence, the defaults, the
// twoway.yaml file, TWOWAY_ environment variables and command line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/canonical/twoway/dialect"
)

const (
	// EnvPrefix is the prefix of the environment variables read.
	EnvPrefix = "TWOWAY_"

	DefaultTemplates = "."
	DefaultDriver    = "sqlite3"
	DefaultOutput    = "text"
)

// fileNames are the config files looked for in the working directory.
var fileNames = []string{"twoway.yaml", "twoway.yml"}

// Outputs lists the accepted output formats.
var Outputs = []string{"text", "json", "yaml"}

// Config holds the settings of the twoway command.
type Config struct {
	// Templates is the directory holding the template files.
	Templates string `koanf:"templates"`

	// Dialect names the SQL dialect. If empty, the dialect of the driver is
	// used.
	Dialect string `koanf:"dialect"`

	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`

	// DqliteNodes are the addresses of the dqlite cluster, used by the dqlite
	// driver.
	DqliteNodes []string `koanf:"dqlite_nodes"`

	// Params is a YAML file holding template bindings.
	Params string `koanf:"params"`

	Output        string `koanf:"output"`
	AllowEmbedded bool   `koanf:"allow_embedded"`
	Verbose       bool   `koanf:"verbose"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"dqlite-node": "dqlite_nodes",
}

// Load reads the configuration. cfgFile names the config file to read; if
// empty, twoway.yaml is used when present in the working directory. flags
// may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"templates": DefaultTemplates,
		"driver":    DefaultDriver,
		"output":    DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("cannot load defaults: %w", err)
	}

	path, err := findFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	// TWOWAY_DQLITE_NODES=a:9001,b:9001 -> dqlite_nodes
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "dqlite_nodes" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("cannot load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("cannot load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("cannot read config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range fileNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks the settings that can be checked without opening a
// database.
func (c *Config) Validate() error {
	if c.Dialect != "" {
		if _, err := dialect.ByName(c.Dialect); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	valid := false
	for _, o := range Outputs {
		if c.Output == o {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid config: unknown output %q (known: %s)", c.Output, strings.Join(Outputs, ", "))
	}
	if c.Driver == "dqlite" && len(c.DqliteNodes) == 0 {
		return fmt.Errorf("invalid config: dqlite driver needs at least one node address")
	}
	return nil
}

// SQLDialect returns the configured dialect, or else the dialect of the
// driver, or else the standard dialect.
func (c *Config) SQLDialect() dialect.Dialect {
	if c.Dialect != "" {
		if d, err := dialect.ByName(c.Dialect); err == nil {
			return d
		}
	}
	if d, err := dialect.ByName(c.Driver); err == nil {
		return d
	}
	return dialect.Standard
}
