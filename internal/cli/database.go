package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/store"
)

// resolveDatabase picks the database path for read-only commands:
// the --db flag, then ZUGDIENSTE_DATABASE, then the default.
func resolveDatabase(flag string) string {
	if flag != "" {
		return flag
	}
	if v, ok := os.LookupEnv(config.EnvDatabase); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return config.DefaultDatabase
}

// openExisting opens a database that must already exist, read-only.
// Read-only commands never create, migrate or touch the file.
func openExisting(path string) (*store.Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", path, store.ErrNotFound)
	}
	if info.IsDir() {
		return nil, &store.StoreOpenError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	return store.OpenReadOnly(path)
}
