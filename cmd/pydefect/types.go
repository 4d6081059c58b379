package main

import "github.com/jward/pydefect"

// CLIResult is the top-level JSON envelope.
type CLIResult struct {
	Command string          `json:"command"`
	Results []CLIFileReport `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// CLIFileReport holds the defects found in one file.
type CLIFileReport struct {
	Path    string      `json:"path"`
	Defects []CLIDefect `json:"defects"`
}

// CLIDefect is a JSON-friendly defect representation.
type CLIDefect struct {
	Kind    string `json:"kind"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func toCLIDefects(defects []pydefect.Defect) []CLIDefect {
	out := make([]CLIDefect, 0, len(defects))
	for _, d := range defects {
		out = append(out, CLIDefect{
			Kind:    string(d.Kind),
			Line:    d.Line,
			Column:  d.Column,
			Message: d.Message,
		})
	}
	return out
}

// SARIF 2.1.0 subset.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
}
