// Package ir provides the shared record types for zugdienste.
//
// This package contains type definitions and identity helpers only. Every
// other internal package imports ir; ir imports nothing internal, so it
// stays the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - One ServiceRecord per service-definition file, keyed by SourcePath
//   - SourcePath is absolute and slash-separated on every platform
//   - Present-but-empty attributes stay empty strings or zero values
//   - ContentHash covers both the service file and its train companion
package ir
