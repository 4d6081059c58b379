package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// legacySyntax returns a *SyntaxError for the first construct, in document
// order, that tree-sitter-python accepts for Python 2 compatibility or error
// tolerance but CPython 3 rejects. It returns nil for valid source.
func legacySyntax(root *sitter.Node, src []byte) *SyntaxError {
	c := sitter.NewTreeCursor(root)
	defer c.Close()

	for {
		n := c.CurrentNode()
		if msg := legacyMessage(n, src); msg != "" {
			se := syntaxErrorAt(n)
			se.Msg = msg
			return se
		}
		if c.GoToFirstChild() {
			continue
		}
		for !c.GoToNextSibling() {
			if !c.GoToParent() {
				return nil
			}
		}
	}
}

func legacyMessage(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "print_statement":
		// print >> f, x is still a valid Python 3 expression statement.
		if first := n.NamedChild(0); first != nil && first.Type() == "chevron" {
			return ""
		}
		return "Missing parentheses in call to 'print'. Did you mean print(...)?"
	case "exec_statement":
		return "Missing parentheses in call to 'exec'. Did you mean exec(...)?"
	case "<>":
		return "invalid syntax"
	case "string":
		if int(n.StartByte()) < len(src) && src[n.StartByte()] == '`' {
			return "invalid syntax"
		}
	case "integer":
		return integerMessage(n.Content(src))
	case "delete_statement":
		return deleteMessage(n)
	case "argument_list":
		return argumentsMessage(n)
	}
	return ""
}

// integerMessage rejects the Python 2 long suffix and octal literals written
// with a bare leading zero.
func integerMessage(lit string) string {
	if strings.HasSuffix(lit, "l") || strings.HasSuffix(lit, "L") {
		return "invalid decimal literal"
	}
	if len(lit) > 1 && lit[0] == '0' && strings.Trim(lit, "0_") != "" &&
		strings.IndexFunc(lit, func(r rune) bool { return r < '0' || r > '9' && r != '_' }) < 0 {
		return "leading zeros in decimal integer literals are not permitted; use an 0o prefix for octal integers"
	}
	return ""
}

// deleteMessage rejects call targets, which the grammar allows after del.
func deleteMessage(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		target := n.NamedChild(i)
		if target.Type() == "expression_list" {
			if msg := deleteMessage(target); msg != "" {
				return msg
			}
			continue
		}
		if target.Type() == "call" {
			return "cannot delete function call"
		}
	}
	return ""
}

// argumentsMessage enforces CPython's argument ordering: no positional
// argument after a keyword argument and no *args after **kwargs.
func argumentsMessage(n *sitter.Node) string {
	keyword, kwSplat := false, false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		arg := n.NamedChild(i)
		switch arg.Type() {
		case "comment":
		case "keyword_argument":
			keyword = true
		case "dictionary_splat":
			kwSplat = true
		case "list_splat":
			if kwSplat {
				return "iterable argument unpacking follows keyword argument unpacking"
			}
		default:
			if kwSplat {
				return "positional argument follows keyword argument unpacking"
			}
			if keyword {
				return "positional argument follows keyword argument"
			}
		}
	}
	return ""
}
