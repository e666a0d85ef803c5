package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvInstallationPath = "ZUGDIENSTE_INSTALLATION_PATH"
	EnvUserPath         = "ZUGDIENSTE_USER_PATH"
	EnvDatabase         = "ZUGDIENSTE_DATABASE"
	EnvWorkers          = "ZUGDIENSTE_WORKERS"
)

// environment returns a lookup that prefers the process environment and
// falls back to the dotenv file. The process environment is never modified.
func (l *Loader) environment() (func(string) (string, bool), error) {
	lookup := l.lookupEnv
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	if l.envFile == "" {
		return lookup, nil
	}

	dotenv, err := godotenv.Read(l.envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lookup, nil
		}
		return nil, &ConfigurationError{File: l.envFile, Message: "read env file", Err: err}
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// applyEnv overrides cfg with any set environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvInstallationPath); ok && strings.TrimSpace(v) != "" {
		cfg.Paths.InstallationPath = v
	}
	if v, ok := lookup(EnvUserPath); ok {
		cfg.Paths.UserPath = v
	}
	if v, ok := lookup(EnvDatabase); ok && strings.TrimSpace(v) != "" {
		cfg.Database = v
	}
	if v, ok := lookup(EnvWorkers); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigurationError{Field: EnvWorkers, Message: "must be an integer", Err: err}
		}
		cfg.Workers = n
	}
	return nil
}
