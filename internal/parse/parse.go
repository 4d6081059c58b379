// Package parse turns Python source text into tree-sitter syntax trees and
// reports source that cannot be parsed.
package parse

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Tree is a parsed Python file. The source bytes are kept alongside the tree
// because tree-sitter nodes only carry byte offsets.
type Tree struct {
	path string
	src  []byte
	tree *sitter.Tree
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }

// Source returns the decoded source the tree was built from.
func (t *Tree) Source() []byte { return t.src }

// Path returns the path the source was read from, or a label for inline source.
func (t *Tree) Path() string { return t.path }

// Close releases the tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// SyntaxError reports the first location tree-sitter could not parse.
type SyntaxError struct {
	Line   int // 1-based
	Column int // 0-based byte offset
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (<unknown>, line %d)", e.Msg, e.Line)
}

// DecodeError reports source bytes that are not valid UTF-8 Python text.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode source at byte %d: %s", e.Offset, e.Reason)
}

// Parse decodes src and parses it as Python 3. A *DecodeError is returned for
// bytes that are not UTF-8 text and a *SyntaxError for unparseable source,
// including Python 2 forms the grammar still accepts.
func Parse(ctx context.Context, path string, src []byte) (*Tree, error) {
	src, err := decode(src)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: tree-sitter parse failed: %w", err)
	}

	// Nodes belong to the C tree, so the error is built before it is freed.
	root := tree.RootNode()
	if root.HasError() {
		se := syntaxErrorAt(firstErrorNode(root))
		tree.Close()
		return nil, se
	}
	if se := legacySyntax(root, src); se != nil {
		tree.Close()
		return nil, se
	}

	return &Tree{path: path, src: src, tree: tree}, nil
}

// decode strips a leading byte order mark and rejects what CPython refuses to
// compile: NUL bytes and invalid UTF-8.
func decode(src []byte) ([]byte, error) {
	src = bytes.TrimPrefix(src, utf8BOM)
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return nil, &DecodeError{Offset: i, Reason: "source code cannot contain null bytes"}
	}
	if !utf8.Valid(src) {
		off := 0
		for off < len(src) {
			r, size := utf8.DecodeRune(src[off:])
			if r == utf8.RuneError && size <= 1 {
				break
			}
			off += size
		}
		return nil, &DecodeError{Offset: off, Reason: "invalid utf-8 sequence"}
	}
	return src, nil
}

// firstErrorNode returns the first ERROR or MISSING node in document order,
// descending only into subtrees that contain one.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "ERROR" || child.IsMissing() || child.HasError() {
			if found := firstErrorNode(child); found != nil {
				return found
			}
		}
	}
	return n
}

func syntaxErrorAt(n *sitter.Node) *SyntaxError {
	pt := n.StartPoint()
	msg := "invalid syntax"
	if n.IsMissing() {
		msg = fmt.Sprintf("expected '%s'", n.Type())
	}
	return &SyntaxError{
		Line:   int(pt.Row) + 1,
		Column: int(pt.Column),
		Msg:    msg,
	}
}
