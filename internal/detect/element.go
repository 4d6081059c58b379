package detect

import sitter "github.com/smacker/go-tree-sitter"

// role is the expression context a node is visited in. It decides whether an
// identifier counts as a read.
type role uint8

const (
	roleLoad    role = iota // read or deleted
	roleStore               // bound by an assignment-like statement
	roleNone                // not a variable: attribute, keyword, parameter or import name
	rolePattern             // inside a match-case pattern
)

// element is the closed set of syntax shapes the detector dispatches on.
// Anything that is not one of them is an otherNode and only has its children
// visited.
type element interface {
	syntax() *sitter.Node
}

type funcDef struct {
	node       *sitter.Node
	decorators []*sitter.Node
}

// asyncFuncDef is visited generically; only plain def statements are
// function definitions for detection.
type asyncFuncDef struct {
	node       *sitter.Node
	decorators []*sitter.Node
}

type decorated struct {
	node       *sitter.Node
	definition *sitter.Node
	decorators []*sitter.Node
}

type assignment struct{ node *sitter.Node }

type nameRef struct {
	node *sitter.Node
	role role
}

type importStmt struct{ node *sitter.Node }

type importFrom struct{ node *sitter.Node }

type otherNode struct{ node *sitter.Node }

func (e funcDef) syntax() *sitter.Node      { return e.node }
func (e asyncFuncDef) syntax() *sitter.Node { return e.node }
func (e decorated) syntax() *sitter.Node    { return e.node }
func (e assignment) syntax() *sitter.Node   { return e.node }
func (e nameRef) syntax() *sitter.Node      { return e.node }
func (e importStmt) syntax() *sitter.Node   { return e.node }
func (e importFrom) syntax() *sitter.Node   { return e.node }
func (e otherNode) syntax() *sitter.Node    { return e.node }

func classify(n *sitter.Node, r role) element {
	switch n.Type() {
	case "function_definition":
		if isAsync(n) {
			return asyncFuncDef{node: n}
		}
		return funcDef{node: n}
	case "decorated_definition":
		return decorated{
			node:       n,
			definition: n.ChildByFieldName("definition"),
			decorators: childrenOfType(n, "decorator"),
		}
	case "assignment":
		return assignment{node: n}
	case "identifier":
		if r == roleLoad || r == roleStore {
			return nameRef{node: n, role: r}
		}
	case "import_statement", "future_import_statement":
		return importStmt{node: n}
	case "import_from_statement":
		return importFrom{node: n}
	}
	return otherNode{node: n}
}

// childRole derives the context of parent's i-th child from the parent's
// shape, the child's field name and the parent's own context. prev is the
// type of the preceding sibling.
func childRole(parent, child *sitter.Node, i int, prev string, r role) role {
	if r == rolePattern {
		return patternRole(parent, i)
	}

	field := parent.FieldNameForChild(i)
	switch parent.Type() {
	case "attribute":
		if field == "attribute" {
			return roleNone
		}
		return roleLoad
	case "keyword_argument":
		if field == "name" {
			return roleNone
		}
		return roleLoad
	case "class_definition":
		if field == "name" {
			return roleNone
		}
		return roleLoad
	case "parameters", "lambda_parameters", "global_statement", "nonlocal_statement",
		"import_statement", "import_from_statement", "future_import_statement":
		return roleNone
	case "default_parameter", "typed_default_parameter":
		if field == "name" {
			return roleNone
		}
		return roleLoad
	case "typed_parameter":
		if field == "type" {
			return roleLoad
		}
		return roleNone
	case "assignment", "augmented_assignment", "for_statement", "for_in_clause", "type_alias_statement":
		if field == "left" {
			return roleStore
		}
		return roleLoad
	case "named_expression":
		if field == "name" {
			return roleStore
		}
		return roleLoad
	case "as_pattern":
		if field == "alias" {
			return roleStore
		}
		return roleLoad
	case "except_clause", "except_group_clause":
		if prev == "as" {
			return roleStore
		}
		return roleLoad
	case "case_clause":
		if child.Type() == "case_pattern" {
			return rolePattern
		}
		return roleLoad
	case "list_splat_pattern", "dictionary_splat_pattern", "as_pattern_target",
		"dotted_name", "aliased_import", "relative_import", "import_prefix", "wildcard_import":
		return r
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"expression_list", "parenthesized_expression":
		if r == roleStore || r == roleNone {
			return r
		}
		return roleLoad
	}
	return roleLoad
}

// patternRole keeps capture names out of the read set while still counting
// the head of a dotted value pattern (Color.RED) and class pattern names as
// reads.
func patternRole(parent *sitter.Node, i int) role {
	if parent.Type() != "dotted_name" || i != 0 {
		return rolePattern
	}
	if parent.NamedChildCount() > 1 {
		return roleLoad
	}
	if gp := parent.Parent(); gp != nil && gp.Type() == "class_pattern" {
		return roleLoad
	}
	return rolePattern
}

func isAsync(fn *sitter.Node) bool {
	first := fn.Child(0)
	return first != nil && first.Type() == "async"
}

func childrenOfType(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// statements returns n's named children without comments.
func statements(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

func unwrapParens(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		inner := statements(n)
		if len(inner) != 1 {
			return n
		}
		n = inner[0]
	}
	return n
}

// unwrapTarget strips grouping parentheses from an assignment target, which
// tree-sitter may parse as a one-element tuple pattern without a comma.
func unwrapTarget(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "parenthesized_expression", "tuple_pattern", "tuple":
			inner := statements(n)
			if len(inner) != 1 || hasChildOfType(n, ",") {
				return n
			}
			n = inner[0]
		default:
			return n
		}
	}
	return n
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return true
		}
	}
	return false
}
