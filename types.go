package pydefect

import "github.com/jward/pydefect/internal/detect"

// Defect is a single finding: kind, 1-based line, 0-based column and message.
type Defect = detect.Defect

// Kind names a defect category.
type Kind = detect.Kind

// Built-in defect kinds.
const (
	MissingDocstring       = detect.MissingDocstring
	MutableDefaultArgument = detect.MutableDefaultArgument
	UnusedVariable         = detect.UnusedVariable
)

// ScopeMode selects how unused-variable tracking treats nested functions.
type ScopeMode = detect.Mode

const (
	// ScopeFlat clears tracking state at every function definition, nested
	// ones included.
	ScopeFlat = detect.ModeFlat
	// ScopeLexical tracks each function separately and credits reads from
	// nested functions to their enclosing function.
	ScopeLexical = detect.ModeLexical
)

// ParseScopeMode converts "flat" or "lexical" into a ScopeMode.
func ParseScopeMode(s string) (ScopeMode, error) {
	return detect.ParseMode(s)
}

// FileResult is the outcome of analyzing one file.
type FileResult struct {
	Path    string
	Defects []Defect
	// Cached is set when Defects came from the result cache.
	Cached bool
	// Skipped is set for files not analyzed because an earlier file failed.
	Skipped bool
	Err     error
}
