package pydefect

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/jward/pydefect/internal/parse"
)

// FileAccessError reports a path that does not exist or cannot be read.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("pydefect: reading %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// NotFound reports whether the path does not exist.
func (e *FileAccessError) NotFound() bool {
	return errors.Is(e.Err, fs.ErrNotExist)
}

// SourceSyntaxError reports a file that is not valid Python.
type SourceSyntaxError struct {
	Path string
	Err  *parse.SyntaxError
}

func (e *SourceSyntaxError) Error() string {
	return fmt.Sprintf("pydefect: parsing %s: %v", e.Path, e.Err)
}

func (e *SourceSyntaxError) Unwrap() error { return e.Err }

// Line returns the 1-based line of the syntax error.
func (e *SourceSyntaxError) Line() int { return e.Err.Line }
