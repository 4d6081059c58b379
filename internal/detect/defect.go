package detect

import "fmt"

// Kind names a defect category. Built-in kinds double as report headings.
type Kind string

const (
	MissingDocstring       Kind = "Missing Docstring"
	MutableDefaultArgument Kind = "Mutable Default Argument"
	UnusedVariable         Kind = "Unused Variable"
)

// Kinds lists the built-in kinds in rule order.
var Kinds = []Kind{MissingDocstring, MutableDefaultArgument, UnusedVariable}

// Defect is a single finding. Line is 1-based, Column is a 0-based byte
// offset into the line.
type Defect struct {
	Kind    Kind   `json:"kind"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// Mode selects how per-function tracking state is scoped.
type Mode int

const (
	// ModeFlat keeps one tracking window that every function definition,
	// nested or not, clears on entry.
	ModeFlat Mode = iota
	// ModeLexical pushes a window per function definition. Reads a nested
	// function cannot satisfy locally are credited to its parent on exit.
	ModeLexical
)

func (m Mode) String() string {
	switch m {
	case ModeFlat:
		return "flat"
	case ModeLexical:
		return "lexical"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "flat" or "lexical" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "flat":
		return ModeFlat, nil
	case "lexical":
		return ModeLexical, nil
	}
	return ModeFlat, fmt.Errorf("unknown scope mode %q: must be flat or lexical", s)
}
