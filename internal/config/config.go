package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the toolchain configuration passed explicitly into the code
// generator and the VM.
type Config struct {
	VM       VMConfig       `yaml:"vm" toml:"vm"`
	Compiler CompilerConfig `yaml:"compiler" toml:"compiler"`
}

// VMConfig bounds VM resources. Zero MaxSteps means no step budget.
type VMConfig struct {
	MaxStackDepth int `yaml:"max_stack_depth,omitempty" toml:"max_stack_depth"`
	MaxFrameDepth int `yaml:"max_frame_depth,omitempty" toml:"max_frame_depth"`
	MaxSteps      int `yaml:"max_steps,omitempty" toml:"max_steps"`
}

type CompilerConfig struct {
	// EmitLines records a source line for every emitted instruction.
	EmitLines *bool `yaml:"emit_lines,omitempty" toml:"emit_lines"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LinesEnabled reports whether debug line info should be emitted.
func (c *Config) LinesEnabled() bool {
	return c.Compiler.EmitLines == nil || *c.Compiler.EmitLines
}

// LoadConfig reads and parses a config file. The decoder is chosen by
// extension: .toml uses TOML, anything else YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data, path)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses YAML config content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// ParseTOML parses TOML config content from bytes.
func ParseTOML(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for a config file starting from dir and walking up
// to parent directories. Returns "" and nil error if none is found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.VM.MaxStackDepth < 0 {
		return fmt.Errorf("%s: vm.max_stack_depth must not be negative", path)
	}
	if c.VM.MaxFrameDepth < 0 {
		return fmt.Errorf("%s: vm.max_frame_depth must not be negative", path)
	}
	if c.VM.MaxSteps < 0 {
		return fmt.Errorf("%s: vm.max_steps must not be negative", path)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.VM.MaxStackDepth == 0 {
		c.VM.MaxStackDepth = DefaultMaxStackDepth
	}
	if c.VM.MaxFrameDepth == 0 {
		c.VM.MaxFrameDepth = DefaultMaxFrameDepth
	}
}
