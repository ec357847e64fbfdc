// Package config loads jitcalc settings. Values are layered: built-in
// defaults, then a YAML or TOML file, then environment variables. Command
// line flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

// MaxFileSize is the maximum config file size in bytes.
const MaxFileSize = 1 << 20

// Default ports and bind address.
const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8787
	DefaultGRPCPort = 8788
)

// Config is the full jitcalc configuration.
type Config struct {
	Mode     string          `yaml:"mode" toml:"mode"`
	Verbose  bool            `yaml:"verbose" toml:"verbose"`
	Server   ServerConfig    `yaml:"server" toml:"server"`
	Programs []ProgramConfig `yaml:"programs" toml:"programs"`
}

// ServerConfig holds the settings used by `jitcalc serve`.
type ServerConfig struct {
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	GRPCPort    int    `yaml:"grpcPort" toml:"grpcPort"`
	ProgramsDir string `yaml:"programsDir" toml:"programsDir"`
	StateFile   string `yaml:"stateFile" toml:"stateFile"`
}

// ProgramConfig is a program deployed at server start.
type ProgramConfig struct {
	ID          string `yaml:"id" toml:"id"`
	Source      string `yaml:"source" toml:"source"`
	Description string `yaml:"description" toml:"description"`
}

// Error is a configuration error.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode: "recover",
		Server: ServerConfig{
			Host:     DefaultHost,
			Port:     DefaultPort,
			GRPCPort: DefaultGRPCPort,
		},
	}
}

// Load returns the defaults overlaid with the file at path (if path is not
// empty) and then with the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the settings in a YAML (.yaml, .yml) or TOML (.toml)
// file. Keys that are not recognised are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if len(data) > MaxFileSize {
		return &Error{Path: path, Message: fmt.Sprintf("file size %d exceeds maximum %d bytes", len(data), MaxFileSize)}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = c.decodeYAML(data)
	case ".toml":
		err = c.decodeTOML(data)
	default:
		return &Error{Path: path, Message: fmt.Sprintf("unsupported config format %q", ext)}
	}
	if err != nil {
		return &Error{Path: path, Message: err.Error()}
	}
	return nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid YAML: %v", err)
	}
	return nil
}

func (c *Config) decodeTOML(data []byte) error {
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return fmt.Errorf("invalid TOML: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overlays settings from environment variables read through
// getenv. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("JITCALC_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("JITCALC_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Message: fmt.Sprintf("JITCALC_VERBOSE: %v", err)}
		}
		c.Verbose = b
	}
	if v := getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if err := envPort(getenv, "PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := envPort(getenv, "GRPC_PORT", &c.Server.GRPCPort); err != nil {
		return err
	}
	if v := getenv("PROGRAMS_DIR"); v != "" {
		c.Server.ProgramsDir = v
	}
	if v := getenv("STATE_FILE"); v != "" {
		c.Server.StateFile = v
	}
	return nil
}

func envPort(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &Error{Message: fmt.Sprintf("%s: invalid port %q", key, v)}
	}
	*dst = n
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if _, err := driver.ParseMode(c.Mode); err != nil {
		return &Error{Message: err.Error()}
	}
	if err := checkPort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := checkPort("server.grpcPort", c.Server.GRPCPort); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Programs))
	for i, p := range c.Programs {
		if p.ID == "" {
			return &Error{Message: fmt.Sprintf("programs[%d]: id is required", i)}
		}
		if !store.ValidProgramID(p.ID) {
			return &Error{Message: fmt.Sprintf("programs[%d]: invalid id %q", i, p.ID)}
		}
		if seen[p.ID] {
			return &Error{Message: fmt.Sprintf("programs[%d]: duplicate id %q", i, p.ID)}
		}
		seen[p.ID] = true
	}
	return nil
}

func checkPort(field string, port int) error {
	if port < 0 || port > 65535 {
		return &Error{Message: fmt.Sprintf("%s: port %d out of range", field, port)}
	}
	return nil
}

// DriverMode returns the parse error policy named by Mode.
func (c *Config) DriverMode() (driver.Mode, error) {
	return driver.ParseMode(c.Mode)
}

// HTTPAddr returns the host:port the HTTP server binds to.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddr returns the host:port the gRPC server binds to.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
