package scan

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ir"
)

// errNotDirectory is wrapped when a root exists but is a file.
var errNotDirectory = errors.New("not a directory")

// Root is a resolved, existing directory to scan.
type Root struct {
	Path   string    `json:"path"` // absolute
	Origin ir.Origin `json:"origin"`
}

// Roots holds the resolved scan roots. User is nil when the user root is
// not configured or does not exist.
type Roots struct {
	Installation Root
	User         *Root
}

// All returns the roots in scan order: installation first, then user.
func (r Roots) All() []Root {
	roots := []Root{r.Installation}
	if r.User != nil {
		roots = append(roots, *r.User)
	}
	return roots
}

// Resolve returns the roots named by cfg.
//
// A missing installation path is a *config.ConfigurationError and a
// non-existent installation directory is a *DirectoryAccessError; both are
// fatal. A missing or non-existent user directory is logged and omitted.
func Resolve(cfg config.Config, logger *slog.Logger) (Roots, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Paths.InstallationPath == "" {
		return Roots{}, &config.ConfigurationError{Field: "paths.installation_path", Message: "is required"}
	}

	install, err := resolveDir(cfg.Paths.InstallationPath, ir.OriginInstallation)
	if err != nil {
		err.Required = true
		return Roots{}, err
	}

	roots := Roots{Installation: install}

	if cfg.Paths.UserPath == "" {
		logger.Warn("user timetable path not configured, skipping")
		return roots, nil
	}

	user, err := resolveDir(cfg.Paths.UserPath, ir.OriginUser)
	if err != nil {
		logger.Warn("user timetable path unavailable, skipping", "path", cfg.Paths.UserPath, "error", err.Err)
		return roots, nil
	}
	if overlaps(install.Path, user.Path) {
		logger.Warn("user timetable path overlaps installation path, skipping",
			"path", user.Path, "installation_path", install.Path)
		return roots, nil
	}

	roots.User = &user
	return roots, nil
}

// overlaps reports whether a and b are the same directory or one contains
// the other. Symlinks are resolved first.
func overlaps(a, b string) bool {
	a, b = realPath(a), realPath(b)
	return within(a, b) || within(b, a)
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func realPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

func resolveDir(path string, origin ir.Origin) (Root, *DirectoryAccessError) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Root{}, &DirectoryAccessError{Path: path, Origin: origin, Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, &DirectoryAccessError{Path: abs, Origin: origin, Err: err}
	}
	if !info.IsDir() {
		return Root{}, &DirectoryAccessError{Path: abs, Origin: origin, Err: errNotDirectory}
	}

	return Root{Path: abs, Origin: origin}, nil
}
