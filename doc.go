// Package pydefect finds code-quality defects in Python source files using
// tree-sitter. Three defect kinds are built in:
//
//   - Missing Docstring: a def whose body does not open with a string literal.
//   - Mutable Default Argument: a list, dict or set literal as the default of
//     a positional parameter.
//   - Unused Variable: a name assigned in a function and never read there.
//
// # Usage
//
// Create an Engine, discover files and analyze them:
//
//	e, err := pydefect.New(pydefect.WithCache(".pydefect/cache.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	paths, err := e.Discover([]string{"src"})
//	for _, r := range e.AnalyzeFiles(ctx, paths) {
//		...
//	}
//
// [Engine.AnalyzeFiles] returns one [FileResult] per path in input order. A
// file that cannot be read yields a [*FileAccessError]; one that does not
// parse yields a [*SourceSyntaxError]. Unless [WithKeepGoing] is set, files
// after the first failure are marked Skipped.
//
// # Scoping
//
// By default tracking state is flat: every function definition, including a
// nested one, starts a fresh set of assigned and read names, so an outer
// function's assignments made before a nested def are forgotten.
// [WithScopeMode]([ScopeLexical]) keeps one set per function instead.
//
// # Rules
//
// [WithRulesDir] adds Risor scripts that run against each file's syntax tree
// after the built-in checks and report further defects. See the
// internal/runtime package for the globals exposed to scripts.
//
// # Caching
//
// [WithCache] stores results in SQLite keyed by path and content hash.
// Changing the detector version, the scope mode or the rule scripts purges
// the cache.
package pydefect
