package scan

import (
	"context"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/zugdienste/internal/config"
)

// FileKind classifies a walked file by its name.
type FileKind int

const (
	// KindOther is any file the scanner does not understand.
	KindOther FileKind = iota
	// KindService is a service-definition file (e.g. *.timetable.xml).
	KindService
	// KindCompanion is a file read alongside a service (train file, timetable index).
	KindCompanion
)

func (k FileKind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindCompanion:
		return "companion"
	default:
		return "other"
	}
}

// timetableIndexSuffix marks the Zusi timetable index file next to each
// timetable directory.
const timetableIndexSuffix = ".fpn"

// Entry is one regular file found below a root.
type Entry struct {
	Path string // absolute, OS separators
	Rel  string // relative to Root.Path, slash-separated
	Root Root
	Kind FileKind
}

// WalkOptions controls file classification and diagnostics.
type WalkOptions struct {
	ServiceSuffix string
	TrainSuffix   string
	Logger        *slog.Logger
}

// OptionsFromConfig builds WalkOptions from the resolved configuration.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) WalkOptions {
	return WalkOptions{
		ServiceSuffix: cfg.ServiceSuffix,
		TrainSuffix:   cfg.TrainSuffix,
		Logger:        logger,
	}
}

// Classify returns the kind of the file with the given base name.
func (o WalkOptions) Classify(name string) FileKind {
	lower := strings.ToLower(name)
	switch {
	case o.ServiceSuffix != "" && strings.HasSuffix(lower, strings.ToLower(o.ServiceSuffix)):
		return KindService
	case o.TrainSuffix != "" && strings.HasSuffix(lower, strings.ToLower(o.TrainSuffix)):
		return KindCompanion
	case strings.HasSuffix(lower, timetableIndexSuffix):
		return KindCompanion
	default:
		return KindOther
	}
}

// Walk lazily yields every regular file below root.
//
// Directories are visited breadth-first from an explicit worklist, with
// entries in lexical order inside each directory. Each range over the
// returned sequence starts a fresh walk. Unreadable directories and
// directory symlinks that lead back to an already visited directory are
// logged and skipped. The walk stops early when ctx is cancelled.
func Walk(ctx context.Context, root Root, opts WalkOptions) iter.Seq[Entry] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(yield func(Entry) bool) {
		visited := make(map[string]struct{})
		queue := []string{root.Path}
		if real, err := filepath.EvalSymlinks(root.Path); err == nil {
			visited[real] = struct{}{}
		}

		for len(queue) > 0 {
			if ctx.Err() != nil {
				return
			}

			dir := queue[0]
			queue = queue[1:]

			entries, err := os.ReadDir(dir)
			if err != nil {
				logger.Warn("skipping unreadable directory", "path", dir, "error", err)
				// ReadDir may still return the entries read before the failure.
				if len(entries) == 0 {
					continue
				}
			}

			for _, de := range entries {
				if ctx.Err() != nil {
					return
				}

				path := filepath.Join(dir, de.Name())
				mode := de.Type()

				if mode&fs.ModeSymlink != 0 {
					info, err := os.Stat(path)
					if err != nil {
						logger.Warn("skipping broken symlink", "path", path, "error", err)
						continue
					}
					mode = info.Mode().Type()
				}

				switch {
				case mode.IsDir():
					real, err := filepath.EvalSymlinks(path)
					if err != nil {
						logger.Warn("skipping unresolvable directory", "path", path, "error", err)
						continue
					}
					if _, seen := visited[real]; seen {
						logger.Warn("skipping directory cycle", "path", path, "target", real)
						continue
					}
					visited[real] = struct{}{}
					queue = append(queue, path)

				case mode.IsRegular():
					rel, err := filepath.Rel(root.Path, path)
					if err != nil {
						rel = de.Name()
					}
					entry := Entry{
						Path: path,
						Rel:  filepath.ToSlash(rel),
						Root: root,
						Kind: opts.Classify(de.Name()),
					}
					if !yield(entry) {
						return
					}
				}
			}
		}
	}
}
