package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults for optional settings.
const (
	DefaultDatabase      = "zugdienste.db"
	DefaultServiceSuffix = ".timetable.xml"
	DefaultTrainSuffix   = ".trn"
	DefaultWorkers       = 1
	MaxWorkers           = 64
)

// Config is the fully resolved configuration for one run.
type Config struct {
	Paths             Paths    `yaml:"paths" json:"paths"`
	Database          string   `yaml:"database" json:"database"`
	ServiceSuffix     string   `yaml:"service_suffix" json:"service_suffix"`
	TrainSuffix       string   `yaml:"train_suffix" json:"train_suffix"`
	ExclusionKeywords []string `yaml:"exclusion_keywords" json:"exclusion_keywords,omitempty"`
	Workers           int      `yaml:"workers" json:"workers"`
	Prune             bool     `yaml:"prune" json:"prune"`
	MetricsFile       string   `yaml:"metrics_file" json:"metrics_file,omitempty"`
}

// Paths names the two timetable roots.
type Paths struct {
	InstallationPath string `yaml:"installation_path" json:"installation_path"`
	UserPath         string `yaml:"user_path" json:"user_path,omitempty"`
}

// Default returns a Config with every optional setting filled in.
// Paths are left empty.
func Default() Config {
	return Config{
		Database:      DefaultDatabase,
		ServiceSuffix: DefaultServiceSuffix,
		TrainSuffix:   DefaultTrainSuffix,
		Workers:       DefaultWorkers,
	}
}

// Loader resolves configuration from a YAML file, an optional .env file
// and the process environment.
type Loader struct {
	configPath string
	envFile    string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader for the given config file.
// An empty path skips the file and uses defaults plus environment.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		lookupEnv:  os.LookupEnv,
	}
}

// WithEnvFile makes the loader consult a dotenv file for variables that
// are not set in the process environment. A missing file is ignored.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithLookup replaces the environment lookup (used by tests).
func (l *Loader) WithLookup(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// Load resolves the configuration: defaults, then file, then environment,
// then validation. Every failure is a *ConfigurationError.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(&cfg); err != nil {
			return Config{}, err
		}
	}

	env, err := l.environment()
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, env); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.File = l.configPath
		}
		return Config{}, err
	}

	normalize(&cfg)

	if err := Validate(cfg); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.File = l.configPath
		}
		return Config{}, err
	}

	return cfg, nil
}

// Load is a convenience wrapper for NewLoader(path).Load().
func Load(path string) (Config, error) {
	return NewLoader(path).Load()
}

// loadFile decodes the YAML file strictly over the defaults in cfg.
func (l *Loader) loadFile(cfg *Config) error {
	path := filepath.Clean(l.configPath)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return &ConfigurationError{File: path, Message: fmt.Sprintf("unsupported config format %q (only YAML supported)", ext)}
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigurationError{File: path, Message: "read file", Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &ConfigurationError{File: path, Field: "paths", Message: "config file is empty"}
		}
		return &ConfigurationError{File: path, Message: "strict config parse error", Err: err}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &ConfigurationError{File: path, Message: "config file contains multiple documents or trailing content"}
	}

	return nil
}

// normalize cleans paths and keywords in place.
func normalize(cfg *Config) {
	cfg.Paths.InstallationPath = cleanPath(cfg.Paths.InstallationPath)
	cfg.Paths.UserPath = cleanPath(cfg.Paths.UserPath)
	cfg.Database = strings.TrimSpace(cfg.Database)

	var keywords []string
	for _, kw := range cfg.ExclusionKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	cfg.ExclusionKeywords = keywords
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
