// Package detect finds code-quality defects in a Python syntax tree: functions
// without a docstring, mutable default arguments, and variables assigned in a
// function but never read there.
//
// A Detector walks the tree depth-first in source order, following Python's
// own field order for function definitions (parameters, body, decorators,
// return annotation). It never fails; any tree yields a possibly empty,
// ordered slice of defects.
package detect

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Detector holds the state of one traversal. It is not safe for concurrent
// use; give each goroutine its own.
type Detector struct {
	mode    Mode
	src     []byte
	defects []Defect
	windows []*window
}

// Option configures a Detector.
type Option func(*Detector)

// WithMode selects flat or lexical tracking windows.
func WithMode(m Mode) Option {
	return func(d *Detector) {
		d.mode = m
	}
}

// New creates a Detector. The default mode is ModeFlat.
func New(opts ...Option) *Detector {
	d := &Detector{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs a fresh flat-mode Detector over root.
func Detect(root *sitter.Node, src []byte) []Defect {
	return New().Run(root, src)
}

// Run traverses root and returns the defects in discovery order. All
// tracking state is reset first, so a Detector never carries names from one
// tree into the next.
func (d *Detector) Run(root *sitter.Node, src []byte) []Defect {
	d.src = src
	d.defects = nil
	d.windows = []*window{{}}

	d.visit(root, roleLoad)

	out := d.defects
	d.defects = nil
	d.src = nil
	return out
}

func (d *Detector) visit(n *sitter.Node, r role) {
	if n == nil {
		return
	}
	switch e := classify(n, r).(type) {
	case funcDef:
		d.function(e.node, e.decorators)
	case asyncFuncDef:
		d.functionParts(e.node, e.decorators)
	case decorated:
		d.decorated(e)
	case assignment:
		d.assignment(e.node, r)
	case nameRef:
		if e.role == roleLoad {
			d.top().used.add(d.text(e.node))
		}
	case importStmt:
		d.visitChildren(e.node, roleNone)
	case importFrom:
		d.visitChildren(e.node, roleNone)
	case otherNode:
		d.visitChildren(e.node, r)
	}
}

func (d *Detector) visitChildren(n *sitter.Node, r role) {
	prev := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		d.visit(child, childRole(n, child, i, prev, r))
		prev = child.Type()
	}
}

func (d *Detector) function(fn *sitter.Node, decorators []*sitter.Node) {
	name := d.text(fn.ChildByFieldName("name"))

	if !hasDocstring(fn.ChildByFieldName("body"), d.src) {
		d.emit(MissingDocstring, fn, fmt.Sprintf("Function \"%s\" missing docstring", name))
	}

	d.enter(name)
	d.checkDefaults(name, fn.ChildByFieldName("parameters"))
	d.functionParts(fn, decorators)
	d.exit(name, fn)
}

func (d *Detector) functionParts(fn *sitter.Node, decorators []*sitter.Node) {
	d.visit(fn.ChildByFieldName("parameters"), roleNone)
	d.visit(fn.ChildByFieldName("body"), roleLoad)
	for _, dec := range decorators {
		d.visit(dec, roleLoad)
	}
	d.visit(fn.ChildByFieldName("return_type"), roleLoad)
	d.visit(fn.ChildByFieldName("type_parameters"), roleLoad)
}

// decorated visits a decorated definition's decorators after the definition
// itself, the order the Python ast exposes them in.
func (d *Detector) decorated(e decorated) {
	def := e.definition
	if def == nil {
		d.visitChildren(e.node, roleLoad)
		return
	}
	switch inner := classify(def, roleLoad).(type) {
	case funcDef:
		d.function(inner.node, e.decorators)
	case asyncFuncDef:
		d.functionParts(inner.node, e.decorators)
	default:
		d.visit(def, roleLoad)
		for _, dec := range e.decorators {
			d.visit(dec, roleLoad)
		}
	}
}

// assignment records a bare-name target. Annotated assignments, unpacking
// and attribute or subscript targets are not tracked.
func (d *Detector) assignment(n *sitter.Node, r role) {
	if n.ChildByFieldName("type") == nil {
		target := unwrapTarget(n.ChildByFieldName("left"))
		if target != nil && target.Type() == "identifier" {
			d.top().defined.add(d.text(target))
		}
	}
	d.visitChildren(n, r)
}

// checkDefaults flags list, dict and set literals used as defaults for
// positional parameters. Defaults after * or *args are keyword-only.
func (d *Detector) checkDefaults(name string, params *sitter.Node) {
	if params == nil {
		return
	}
	keywordOnly := false
	for i := 0; i < int(params.ChildCount()); i++ {
		p := params.Child(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "list_splat_pattern", "keyword_separator", "*":
			keywordOnly = true
		case "typed_parameter":
			if first := p.NamedChild(0); first != nil && first.Type() == "list_splat_pattern" {
				keywordOnly = true
			}
		case "default_parameter", "typed_default_parameter":
			if keywordOnly {
				continue
			}
			value := unwrapParens(p.ChildByFieldName("value"))
			if value != nil && isMutableLiteral(value) {
				d.emit(MutableDefaultArgument, value, fmt.Sprintf("Function \"%s\" uses mutable default argument", name))
			}
		}
	}
}

func (d *Detector) enter(function string) {
	if d.mode == ModeLexical {
		d.windows = append(d.windows, &window{})
		return
	}
	d.top().reset()
}

func (d *Detector) exit(function string, fn *sitter.Node) {
	w := d.top()
	for _, name := range w.unused() {
		d.emit(UnusedVariable, fn, fmt.Sprintf("Variable \"%s\" defined but not used in function \"%s\"", name, function))
	}
	if d.mode != ModeLexical {
		return
	}

	d.windows = d.windows[:len(d.windows)-1]
	parent := d.top()
	for _, name := range w.used.names() {
		if !w.defined.has(name) {
			parent.used.add(name)
		}
	}
}

func (d *Detector) top() *window {
	return d.windows[len(d.windows)-1]
}

func (d *Detector) emit(kind Kind, at *sitter.Node, msg string) {
	pt := at.StartPoint()
	d.defects = append(d.defects, Defect{
		Kind:    kind,
		Line:    int(pt.Row) + 1,
		Column:  int(pt.Column),
		Message: msg,
	})
}

func (d *Detector) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(d.src)
}

// hasDocstring reports whether a function body opens with a bare string
// literal statement.
func hasDocstring(body *sitter.Node, src []byte) bool {
	stmts := statements(body)
	if len(stmts) == 0 || stmts[0].Type() != "expression_statement" {
		return false
	}
	exprs := statements(stmts[0])
	if len(exprs) != 1 {
		return false
	}
	return isTextLiteral(unwrapParens(exprs[0]), src)
}

// isTextLiteral matches str constants: plain or implicitly concatenated
// strings with no f, b or t prefix.
func isTextLiteral(n *sitter.Node, src []byte) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "string":
		return !hasValuePrefix(n.Content(src))
	case "concatenated_string":
		parts := statements(n)
		if len(parts) == 0 {
			return false
		}
		for _, part := range parts {
			if part.Type() != "string" || hasValuePrefix(part.Content(src)) {
				return false
			}
		}
		return true
	}
	return false
}

func hasValuePrefix(lit string) bool {
	q := strings.IndexAny(lit, `'"`)
	if q <= 0 {
		return false
	}
	return strings.ContainsAny(strings.ToLower(lit[:q]), "fbt")
}

func isMutableLiteral(n *sitter.Node) bool {
	switch n.Type() {
	case "list", "dictionary", "set":
		return true
	}
	return false
}
