// Package config loads proofkit.yaml.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/proofkit/artifact"
	"github.com/petal-labs/proofkit/proof"
)

const (
	projectConfigName = "proofkit.yaml"
	homeConfigDir     = ".proofkit"
	homeConfigName    = "config.yaml"
)

// Config is the file shape of proofkit.yaml.
type Config struct {
	Theorem     string          `yaml:"theorem"`
	Description string          `yaml:"description"`
	LedgerNote  string          `yaml:"ledger_note"`
	Transform   TransformConfig `yaml:"transform"`
	Expressions []string        `yaml:"expressions"`
	Output      OutputConfig    `yaml:"output"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// TransformConfig describes f(x) = (x - shift) / scale. Shift and scale are
// strings so fractions such as "1/3" survive YAML decoding exactly.
type TransformConfig struct {
	Variable string `yaml:"variable"`
	Shift    string `yaml:"shift"`
	Scale    string `yaml:"scale"`
}

// OutputConfig selects the artifact sink.
type OutputConfig struct {
	Sink string `yaml:"sink"`
	Dir  string `yaml:"dir"`
	DSN  string `yaml:"dsn"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	// OTLPEndpoint is an OTLP/HTTP collector address; empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Theorem:     proof.DefaultTheorem,
		Description: "reversibility_proof",
		LedgerNote:  "Reversibility proof example",
		Transform: TransformConfig{
			Variable: proof.DefaultVariable,
			Shift:    "5",
			Scale:    "2",
		},
		Expressions: []string{"(x - 5)/2", "(x + 0)/2"},
		Output: OutputConfig{
			Sink: string(artifact.SinkFile),
			Dir:  "logs",
			DSN:  "proofkit.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "proofkit",
		},
	}
}

// Discover resolves the config location with first-match semantics: the
// explicit path, then ./proofkit.yaml, then ~/.proofkit/config.yaml.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// A missing home only disables the home candidate.
		homeDir = ""
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found: %w", candidate, os.ErrNotExist)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load discovers and reads the config, falling back to Default when no file
// exists. It returns the path it read, or "" for built-in defaults.
func Load(explicitPath string) (Config, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	if !found {
		return Default(), "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

// LoadFile reads one config file over the defaults and validates it.
func LoadFile(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, expands environment references and
// validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing yaml: %w", err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.Output.Dir = expandEnvValue(c.Output.Dir)
	c.Output.DSN = expandEnvValue(c.Output.DSN)
	c.Telemetry.OTLPEndpoint = expandEnvValue(c.Telemetry.OTLPEndpoint)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Transform.Variable) == "" {
		return errors.New("transform.variable must not be empty")
	}
	if _, err := c.LinearTransform(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Description) == "" {
		return errors.New("description must not be empty")
	}
	switch artifact.SinkType(c.Output.Sink) {
	case artifact.SinkFile:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return errors.New("output.dir is required for the file sink")
		}
	case artifact.SinkSQLite:
		if strings.TrimSpace(c.Output.DSN) == "" {
			return errors.New("output.dsn is required for the sqlite sink")
		}
	case artifact.SinkMemory, artifact.SinkLog:
	default:
		return fmt.Errorf("output.sink %q is not one of file, sqlite, memory, log", c.Output.Sink)
	}
	return nil
}

// LinearTransform converts the transform section.
func (c Config) LinearTransform() (proof.LinearTransform, error) {
	shift, ok := new(big.Rat).SetString(strings.TrimSpace(c.Transform.Shift))
	if !ok {
		return proof.LinearTransform{}, fmt.Errorf("transform.shift %q is not a number", c.Transform.Shift)
	}
	scale, ok := new(big.Rat).SetString(strings.TrimSpace(c.Transform.Scale))
	if !ok {
		return proof.LinearTransform{}, fmt.Errorf("transform.scale %q is not a number", c.Transform.Scale)
	}
	t, err := proof.NewLinearTransform(strings.TrimSpace(c.Transform.Variable), shift, scale)
	if err != nil {
		return proof.LinearTransform{}, fmt.Errorf("transform.scale: %w", err)
	}
	return t, nil
}

// SinkOptions converts the output section.
func (c Config) SinkOptions() artifact.Options {
	return artifact.Options{
		Type: artifact.SinkType(c.Output.Sink),
		Dir:  c.Output.Dir,
		DSN:  c.Output.DSN,
	}
}

func expandEnvValue(value string) string {
	return os.ExpandEnv(value)
}
