package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fatih/color"

	"github.com/jward/pydefect"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"text", "json", "sarif"}

// validateFormat checks that the --format value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, ", "))
}

// writeReport writes results in the selected format. Failed results only
// get their banner in text format, the way an analysis that stops on the
// error looks; the structured formats leave them out.
func writeReport(w io.Writer, format string, results []pydefect.FileResult, colored bool) error {
	switch format {
	case "json":
		return writeJSON(w, succeeded(results))
	case "sarif":
		return writeSARIF(w, succeeded(results))
	default:
		p := newTextPrinter(w, colored)
		for _, r := range results {
			if r.Err != nil {
				p.printBanner(r.Path)
				continue
			}
			p.printFile(r.Path, r.Defects)
		}
		return nil
	}
}

func succeeded(results []pydefect.FileResult) []pydefect.FileResult {
	var out []pydefect.FileResult
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// textPrinter renders the human-readable report.
type textPrinter struct {
	w      io.Writer
	banner *color.Color
	kind   *color.Color
}

func newTextPrinter(w io.Writer, colored bool) *textPrinter {
	p := &textPrinter{
		w:      w,
		banner: color.New(color.FgCyan, color.Bold),
		kind:   color.New(color.FgYellow, color.Bold),
	}
	if colored {
		p.banner.EnableColor()
		p.kind.EnableColor()
	} else {
		p.banner.DisableColor()
		p.kind.DisableColor()
	}
	return p
}

func (p *textPrinter) printBanner(path string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.banner.Sprintf("=== Analyzing %s ===", path))
}

// printFile prints one file's defects grouped by kind, kinds in the order
// they were first found.
func (p *textPrinter) printFile(path string, defects []pydefect.Defect) {
	p.printBanner(path)
	if len(defects) == 0 {
		fmt.Fprintln(p.w, "No defects found.")
		return
	}

	var order []pydefect.Kind
	groups := make(map[pydefect.Kind][]pydefect.Defect)
	for _, d := range defects {
		if _, ok := groups[d.Kind]; !ok {
			order = append(order, d.Kind)
		}
		groups[d.Kind] = append(groups[d.Kind], d)
	}

	for _, kind := range order {
		group := groups[kind]
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, p.kind.Sprintf("%s (%d):", kind, len(group)))
		for _, d := range group {
			fmt.Fprintf(p.w, "  Line %d: %s\n", d.Line, d.Message)
		}
	}
}

func writeJSON(w io.Writer, results []pydefect.FileResult) error {
	out := CLIResult{Command: "analyze", Results: make([]CLIFileReport, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, CLIFileReport{Path: r.Path, Defects: toCLIDefects(r.Defects)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

const sarifSchema = "https://json.schemastore.org/sarif-2.1.0.json"

// builtinRuleIDs are the stable SARIF ids of the built-in kinds.
var builtinRuleIDs = map[pydefect.Kind]string{
	pydefect.MissingDocstring:       "PYD001",
	pydefect.MutableDefaultArgument: "PYD002",
	pydefect.UnusedVariable:         "PYD003",
}

// ruleID returns the SARIF rule id for kind. Script kinds get "PYD-" plus a
// slug of the kind name.
func ruleID(kind pydefect.Kind) string {
	if id, ok := builtinRuleIDs[kind]; ok {
		return id
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(string(kind)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return "PYD-" + strings.TrimSuffix(b.String(), "-")
}

func writeSARIF(w io.Writer, results []pydefect.FileResult) error {
	driver := sarifDriver{Name: "pydefect", Version: pydefect.Version}
	index := make(map[pydefect.Kind]int)
	addRule := func(kind pydefect.Kind) int {
		if i, ok := index[kind]; ok {
			return i
		}
		index[kind] = len(driver.Rules)
		driver.Rules = append(driver.Rules, sarifRule{
			ID:               ruleID(kind),
			Name:             strings.ReplaceAll(string(kind), " ", ""),
			ShortDescription: sarifMessage{Text: string(kind)},
		})
		return index[kind]
	}
	for _, kind := range []pydefect.Kind{pydefect.MissingDocstring, pydefect.MutableDefaultArgument, pydefect.UnusedVariable} {
		addRule(kind)
	}

	run := sarifRun{Results: make([]sarifResult, 0)}
	for _, r := range results {
		uri := filepath.ToSlash(r.Path)
		for _, d := range r.Defects {
			i := addRule(d.Kind)
			run.Results = append(run.Results, sarifResult{
				RuleID:    driver.Rules[i].ID,
				RuleIndex: i,
				Level:     "warning",
				Message:   sarifMessage{Text: d.Message},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: uri},
						// SARIF columns are 1-based.
						Region: sarifRegion{StartLine: d.Line, StartColumn: d.Column + 1},
					},
				}},
			})
		}
	}
	run.Tool = sarifTool{Driver: driver}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sarifLog{Schema: sarifSchema, Version: "2.1.0", Runs: []sarifRun{run}})
}
