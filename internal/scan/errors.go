package scan

import (
	"fmt"

	"github.com/roach88/zugdienste/internal/ir"
)

// DirectoryAccessError reports a configured root that cannot be used.
// It is fatal for the installation root and a logged skip for the user root.
type DirectoryAccessError struct {
	Path     string
	Origin   ir.Origin
	Required bool
	Err      error
}

func (e *DirectoryAccessError) Error() string {
	return fmt.Sprintf("%s root %s: %v", e.Origin, e.Path, e.Err)
}

func (e *DirectoryAccessError) Unwrap() error {
	return e.Err
}
