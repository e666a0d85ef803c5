package config

import "fmt"

// ConfigurationError reports a missing or invalid configuration value.
// It is always fatal: the run aborts before touching any source directory.
type ConfigurationError struct {
	File    string // config file path, empty when values came from env only
	Field   string // dotted key, e.g. "paths.installation_path"
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.Err)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
