package detect

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pydefect/internal/parse"
)

// detectSource parses src and runs a new Detector over it.
func detectSource(t *testing.T, src string, opts ...Option) []Defect {
	t.Helper()
	tree, err := parse.Parse(context.Background(), "test.py", []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return New(opts...).Run(tree.Root(), tree.Source())
}

// parseRaw parses src without rejecting syntax errors.
func parseRaw(t *testing.T, src string) *sitter.Tree {
	t.Helper()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(parse.Grammar())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func kindsOf(defects []Defect) []Kind {
	out := make([]Kind, 0, len(defects))
	for _, d := range defects {
		out = append(out, d.Kind)
	}
	return out
}

// --- Scenarios ---

func TestDetect_EmptyFunctionMissingDocstring(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "def f(): pass\n")
	assert.Equal(t, []Defect{
		{Kind: MissingDocstring, Line: 1, Column: 0, Message: `Function "f" missing docstring`},
	}, got)
}

func TestDetect_MutableDefaultWithDocstring(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "def f(x=[]):\n    \"doc\"\n    return x\n")
	assert.Equal(t, []Defect{
		{Kind: MutableDefaultArgument, Line: 1, Column: 8, Message: `Function "f" uses mutable default argument`},
	}, got)
}

func TestDetect_UnusedVariable(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "def f():\n    \"doc\"\n    y = 1\n")
	assert.Equal(t, []Defect{
		{Kind: UnusedVariable, Line: 1, Column: 0, Message: `Variable "y" defined but not used in function "f"`},
	}, got)
}

func TestDetect_UsedVariable(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "def f():\n    \"doc\"\n    y = 1\n    return y\n")
	assert.Empty(t, got)
}

func TestDetect_TwoFunctions(t *testing.T) {
	t.Parallel()
	src := `def first():
    return 1


def second():
    "doc"
    unused = 2
`
	got := detectSource(t, src)
	assert.Equal(t, []Defect{
		{Kind: MissingDocstring, Line: 1, Column: 0, Message: `Function "first" missing docstring`},
		{Kind: UnusedVariable, Line: 5, Column: 0, Message: `Variable "unused" defined but not used in function "second"`},
	}, got)
}

func TestDetect_Idempotent(t *testing.T) {
	t.Parallel()
	src := `def a(x={}):
    y = 1
    def b():
        z = 2
    return x
`
	tree, err := parse.Parse(context.Background(), "test.py", []byte(src))
	require.NoError(t, err)
	defer tree.Close()

	d := New()
	first := d.Run(tree.Root(), tree.Source())
	second := d.Run(tree.Root(), tree.Source())
	third := New().Run(tree.Root(), tree.Source())
	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.NotEmpty(t, first)
}

func TestDetect_NoFunctions(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "import os\nx = 1\nprint(os.name)\n")
	assert.Empty(t, got)
}

// --- Rule A: docstrings ---

func TestDetect_Docstrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		missing bool
	}{
		{"plain", "def f():\n    \"doc\"\n", false},
		{"single quotes", "def f():\n    'doc'\n", false},
		{"triple quoted", "def f():\n    \"\"\"Doc.\n\n    More.\n    \"\"\"\n", false},
		{"raw string", "def f():\n    r\"doc\"\n", false},
		{"unicode prefix", "def f():\n    u\"doc\"\n", false},
		{"concatenated", "def f():\n    \"a\" \"b\"\n", false},
		{"parenthesized", "def f():\n    (\"doc\")\n", false},
		{"comment before docstring", "def f():\n    # note\n    \"doc\"\n", false},
		{"f-string", "def f():\n    f\"doc\"\n", true},
		{"bytes", "def f():\n    b\"doc\"\n", true},
		{"concatenated with f-string", "def f():\n    \"a\" f\"b\"\n", true},
		{"docstring not first", "def f():\n    x = 1\n    \"doc\"\n    return x\n", true},
		{"number", "def f():\n    42\n", true},
		{"string in tuple", "def f():\n    \"a\", \"b\"\n", true},
		{"assigned string", "def f():\n    s = \"doc\"\n    return s\n", true},
		{"pass only", "def f():\n    pass\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := detectSource(t, tt.src)
			if tt.missing {
				require.NotEmpty(t, got)
				assert.Equal(t, MissingDocstring, got[0].Kind)
				assert.Equal(t, `Function "f" missing docstring`, got[0].Message)
			} else {
				assert.NotContains(t, kindsOf(got), MissingDocstring)
			}
		})
	}
}

func TestDetect_MethodPosition(t *testing.T) {
	t.Parallel()
	src := `class C:
    "Class docs do not count for methods."

    def m(self):
        pass
`
	got := detectSource(t, src)
	assert.Equal(t, []Defect{
		{Kind: MissingDocstring, Line: 4, Column: 4, Message: `Function "m" missing docstring`},
	}, got)
}

func TestDetect_DecoratedFunctionPosition(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "@staticmethod\ndef f():\n    pass\n")
	assert.Equal(t, []Defect{
		{Kind: MissingDocstring, Line: 2, Column: 0, Message: `Function "f" missing docstring`},
	}, got)
}

// --- Rule B: mutable defaults ---

func TestDetect_MutableDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  string
		columns []int
	}{
		{"list", "x=[]", []int{8}},
		{"dict", "x={}", []int{8}},
		{"set", "x={1}", []int{8}},
		{"non-empty list", "x=[1, 2]", []int{8}},
		{"parenthesized list", "x=([])", []int{9}},
		{"typed default", "x: list = []", []int{16}},
		{"two mutable", "a={}, b={1}", []int{8, 14}},
		{"after plain parameter", "a, b=[]", []int{11}},
		{"positional only", "a=[], /", []int{8}},
		{"none", "x=None", nil},
		{"number", "x=0", nil},
		{"string", "x='s'", nil},
		{"tuple", "x=()", nil},
		{"name", "x=DEFAULT", nil},
		{"call", "x=list()", nil},
		{"comprehension", "x=[i for i in range(3)]", nil},
		{"keyword only after star", "a, *, b=[]", nil},
		{"keyword only after varargs", "*args, b={}", nil},
		{"keyword only after typed varargs", "*args: int, b={}", nil},
		{"positional flagged keyword only ignored", "a={}, *, b=[]", []int{8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := "def f(" + tt.params + "):\n    \"doc\"\n    return None\n"
			got := detectSource(t, src)

			var cols []int
			for _, d := range got {
				require.Equal(t, MutableDefaultArgument, d.Kind)
				assert.Equal(t, 1, d.Line)
				assert.Equal(t, `Function "f" uses mutable default argument`, d.Message)
				cols = append(cols, d.Column)
			}
			assert.Equal(t, tt.columns, cols)
		})
	}
}

func TestDetect_LambdaDefaultsIgnored(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "g = lambda x=[]: x\n")
	assert.Empty(t, got)
}

// --- Rule C: unused variables ---

func TestDetect_UnusedVariables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		unused []string
	}{
		{"returned", "x = 1\n    return x", nil},
		{"passed to call", "x = 1\n    print(x)", nil},
		{"used in expression", "x = 1\n    y = x + 1\n    return y", nil},
		{"deleted", "x = 1\n    del x", nil},
		{"used in f-string", "x = 1\n    return f\"{x}\"", nil},
		{"used as attribute object", "x = 1\n    return x.real", nil},
		{"used as subscript", "x = [1]\n    return x[0]", nil},
		{"used before assignment", "print(x)\n    x = 1", nil},
		{"used in comprehension", "x = [1]\n    return [i for i in x]", nil},
		{"used in nested lambda", "x = 1\n    return lambda: x", nil},
		{"attribute target object read", "x = Obj()\n    x.y = 1", nil},
		{"subscript target object read", "x = {}\n    x['k'] = 1", nil},
		{"never read", "x = 1", []string{"x"}},
		{"chained", "a = b = 1", []string{"a", "b"}},
		{"first assignment order", "b = 1\n    a = 2\n    b = 3", []string{"b", "a"}},
		{"parenthesized target", "(x) = 1", []string{"x"}},
		{"augmented assignment is not a read", "x = 1\n    x += 1", []string{"x"}},
		{"annotated assignment untracked", "x: int = 1", nil},
		{"tuple unpacking untracked", "a, b = 1, 2", nil},
		{"list unpacking untracked", "[a, b] = 1, 2", nil},
		{"attribute target untracked", "self.x = 1", nil},
		{"augmented only untracked", "total += 1", nil},
		{"attribute name is not a read", "x = 1\n    return obj.x", []string{"x"}},
		{"keyword name is not a read", "x = 1\n    return g(x=2)", []string{"x"}},
		{"import name is not a read", "x = 1\n    import x", []string{"x"}},
		{"from import name is not a read", "x = 1\n    from m import x", []string{"x"}},
		{"lambda parameter is not a read", "x = 1\n    return lambda x: 0", []string{"x"}},
		{"for target is not a read", "x = 1\n    for x in range(3):\n        pass", []string{"x"}},
		{"global name is not a read", "global x\n    x = 1", []string{"x"}},
		{"except alias is not a read", "x = 1\n    try:\n        pass\n    except ValueError as x:\n        pass", []string{"x"}},
		{"with alias is not a read", "x = 1\n    with open('f') as x:\n        pass", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := "def f(obj, g, m=None):\n    \"doc\"\n    " + tt.body + "\n"
			got := detectSource(t, src)

			var unused []string
			for _, d := range got {
				require.Equal(t, UnusedVariable, d.Kind, "unexpected defect %+v", d)
				assert.Equal(t, 1, d.Line)
				assert.Equal(t, 0, d.Column)
				unused = append(unused, d.Message)
			}
			var want []string
			for _, name := range tt.unused {
				want = append(want, `Variable "`+name+`" defined but not used in function "f"`)
			}
			assert.Equal(t, want, unused)
		})
	}
}

func TestDetect_ParameterIsNotDefinition(t *testing.T) {
	t.Parallel()
	got := detectSource(t, "def f(a, b=1, *args, **kw):\n    \"doc\"\n")
	assert.Empty(t, got)
}

func TestDetect_DecoratorReadCountsForFunction(t *testing.T) {
	t.Parallel()
	src := `@cache
def f():
    "doc"
    cache = 1
`
	got := detectSource(t, src)
	assert.Empty(t, got)
}

func TestDetect_ReturnAnnotationRead(t *testing.T) {
	t.Parallel()
	src := `def f() -> Alias:
    "doc"
    Alias = int
`
	got := detectSource(t, src)
	assert.Empty(t, got)
}

func TestDetect_AsyncFunctionsAreNotChecked(t *testing.T) {
	t.Parallel()
	src := `async def fetch(x=[]):
    y = 1
`
	got := detectSource(t, src)
	assert.Empty(t, got)
}

func TestDetect_AsyncNamesFeedEnclosingWindow(t *testing.T) {
	t.Parallel()
	src := `def outer():
    "doc"
    x = 1
    async def inner():
        return x
    return inner
`
	got := detectSource(t, src)
	assert.Empty(t, got)
}

// --- Scoping across nested definitions ---

const nestedForgetsOuter = `def outer():
    "doc"
    a = 1
    def inner():
        "doc"
    return 0
`

const nestedReportedTwice = `def outer():
    "doc"
    a = 1
    def inner():
        "doc"
        b = 2
    return a
`

const closureRead = `def outer():
    "doc"
    a = 1
    def inner():
        "doc"
        return a
    return inner
`

func TestDetect_FlatModeResetsOnNestedDefinition(t *testing.T) {
	t.Parallel()

	got := detectSource(t, nestedForgetsOuter)
	assert.Empty(t, got, "assignments before a nested def are forgotten")

	got = detectSource(t, nestedReportedTwice)
	assert.Equal(t, []Defect{
		{Kind: UnusedVariable, Line: 4, Column: 4, Message: `Variable "b" defined but not used in function "inner"`},
		{Kind: UnusedVariable, Line: 1, Column: 0, Message: `Variable "b" defined but not used in function "outer"`},
	}, got)

	got = detectSource(t, closureRead)
	assert.Empty(t, got)
}

func TestDetect_LexicalModeKeepsScopes(t *testing.T) {
	t.Parallel()

	got := detectSource(t, nestedForgetsOuter, WithMode(ModeLexical))
	assert.Equal(t, []Defect{
		{Kind: UnusedVariable, Line: 1, Column: 0, Message: `Variable "a" defined but not used in function "outer"`},
	}, got)

	got = detectSource(t, nestedReportedTwice, WithMode(ModeLexical))
	assert.Equal(t, []Defect{
		{Kind: UnusedVariable, Line: 4, Column: 4, Message: `Variable "b" defined but not used in function "inner"`},
	}, got)

	got = detectSource(t, closureRead, WithMode(ModeLexical))
	assert.Empty(t, got)
}

func TestDetect_LexicalModeLocalShadowDoesNotReachParent(t *testing.T) {
	t.Parallel()
	src := `def outer():
    "doc"
    a = 1
    def inner():
        "doc"
        a = 2
        return a
    return inner
`
	got := detectSource(t, src, WithMode(ModeLexical))
	assert.Equal(t, []Defect{
		{Kind: UnusedVariable, Line: 1, Column: 0, Message: `Variable "a" defined but not used in function "outer"`},
	}, got)
}

func TestDetect_OrderWithinFunction(t *testing.T) {
	t.Parallel()
	src := `def f(x=[]):
    def g():
        pass
    y = 1
`
	got := detectSource(t, src)
	assert.Equal(t, []Kind{
		MissingDocstring,
		MutableDefaultArgument,
		MissingDocstring,
		UnusedVariable,
	}, kindsOf(got))
	assert.Equal(t, `Function "g" missing docstring`, got[2].Message)
	assert.Equal(t, `Variable "y" defined but not used in function "f"`, got[3].Message)
}

// --- Totality ---

func TestDetect_NeverPanicsOnBrokenTrees(t *testing.T) {
	t.Parallel()

	sources := []string{
		"",
		"def",
		"def f(:\n",
		"def f(x=[):\n    y =\n",
		"class C(\n    def m(self): pass\n",
		"x = = 1\n",
		"@\n",
		"lambda: (",
		"def f():\n    \"doc\n",
	}
	for _, src := range sources {
		tree := parseRaw(t, src)
		assert.NotPanics(t, func() {
			Detect(tree.RootNode(), []byte(src))
		}, "source %q", src)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("lexical")
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFlat, m)
	assert.Equal(t, "flat", m.String())

	_, err = ParseMode("stacked")
	require.Error(t, err)
}
