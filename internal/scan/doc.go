// Package scan resolves the configured timetable roots and enumerates the
// files below them.
//
// Resolve turns a config.Config into a set of Roots: the installation root
// is required, the user root is optional and dropped with a warning when it
// does not exist. Walk lazily yields every regular file below a root using
// an explicit directory worklist. Unreadable directories and symlink cycles
// are logged and skipped so a single bad subtree never aborts a scan.
package scan
