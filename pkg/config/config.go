// Package config loads the settings shared by the server and the CLI.
package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/selector-engine/pkg/generator"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Documents DocumentsConfig `yaml:"documents"`
	Engines   EnginesConfig   `yaml:"engines"`
	Generator GeneratorConfig `yaml:"generator"`
	LogLevel  string          `yaml:"logLevel"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpcPort"`
}

// DocumentsConfig names a directory of HTML documents loaded at startup.
type DocumentsConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// EnginesConfig lists extra attribute engines. Each name becomes an engine
// matching elements whose attribute of that name equals the argument.
type EnginesConfig struct {
	Attributes []string `yaml:"attributes"`
}

type GeneratorConfig struct {
	Scores                generator.Scores `yaml:"scores"`
	TestIDAttributes      []string         `yaml:"testIdAttributes"`
	MaxNthMatchCandidates int              `yaml:"maxNthMatchCandidates"`
	MaxTextLength         int              `yaml:"maxTextLength"`
	GUIDRatio             float64          `yaml:"guidRatio"`
	Retarget              *bool            `yaml:"retarget"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	opts := generator.DefaultOptions()
	retarget := opts.Retarget
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8787,
			GRPCPort: 8788,
		},
		Documents: DocumentsConfig{Pattern: "**/*.html"},
		Generator: GeneratorConfig{
			Scores:                opts.Scores,
			TestIDAttributes:      opts.TestIDAttributes,
			MaxNthMatchCandidates: opts.MaxNthMatchCandidates,
			MaxTextLength:         opts.MaxTextLength,
			GUIDRatio:             opts.GUIDRatio,
			Retarget:              &retarget,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = envOrDefault("HOST", c.Server.Host)
	c.Documents.Dir = envOrDefault("DOCUMENTS_DIR", c.Documents.Dir)
	c.LogLevel = envOrDefault("LOG_LEVEL", c.LogLevel)

	for key, dst := range map[string]*int{"PORT": &c.Server.Port, "GRPC_PORT": &c.Server.GRPCPort} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port %d", c.Server.GRPCPort)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Generator.MaxNthMatchCandidates < 1 {
		return fmt.Errorf("generator.maxNthMatchCandidates must be positive")
	}
	if c.Generator.MaxTextLength < 1 {
		return fmt.Errorf("generator.maxTextLength must be positive")
	}
	for _, attr := range c.Engines.Attributes {
		if attr == "" {
			return fmt.Errorf("engines.attributes contains an empty name")
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// GeneratorOptions converts the generator section.
func (c *Config) GeneratorOptions() generator.Options {
	opts := generator.DefaultOptions()
	opts.Scores = c.Generator.Scores
	if len(c.Generator.TestIDAttributes) > 0 {
		opts.TestIDAttributes = c.Generator.TestIDAttributes
	}
	opts.MaxNthMatchCandidates = c.Generator.MaxNthMatchCandidates
	opts.MaxTextLength = c.Generator.MaxTextLength
	opts.GUIDRatio = c.Generator.GUIDRatio
	if c.Generator.Retarget != nil {
		opts.Retarget = *c.Generator.Retarget
	}
	return opts
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
