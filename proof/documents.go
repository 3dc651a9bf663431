package proof

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/petal-labs/proofkit/symbolic"
)

// SymbolicLog records the structural form of a proved transform.
type SymbolicLog struct {
	Description  string `json:"description"`
	SymbolicExpr string `json:"symbolic_expr"`
}

// LedgerEntry notarizes a proof hash in the local audit ledger.
type LedgerEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ProofHash   string    `json:"proof_hash"`
	Description string    `json:"description"`
}

// RegistryRecord is the exported, self-describing form of a proof.
type RegistryRecord struct {
	Theorem      string    `json:"theorem"`
	SymbolicExpr string    `json:"symbolic_expr"`
	LaTeX        string    `json:"latex"`
	Inverse      string    `json:"inverse"`
	ProofHash    string    `json:"proof_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// ValidationEntry is one classified expression.
type ValidationEntry struct {
	Index      int                     `json:"index"`
	Input      string                  `json:"input"`
	Status     symbolic.Classification `json:"status"`
	Simplified string                  `json:"simplified,omitempty"`
	Message    string                  `json:"message"`
}

// ValidationReport summarizes a validated expression stream.
type ValidationReport struct {
	RunID     string                          `json:"run_id"`
	Timestamp time.Time                       `json:"timestamp"`
	Total     int                             `json:"total"`
	Counts    map[symbolic.Classification]int `json:"counts"`
	Entries   []ValidationEntry               `json:"entries"`
}

// Passed reports whether every entry is valid.
func (r *ValidationReport) Passed() bool {
	return r.Counts[symbolic.Valid] == r.Total
}

// NewSymbolicLog builds the symbolic log for p.
func NewSymbolicLog(p *Proof, description string) SymbolicLog {
	return SymbolicLog{
		Description:  description,
		SymbolicExpr: symbolic.Srepr(p.Forward),
	}
}

// NewLedgerEntry builds a ledger entry for p.
func NewLedgerEntry(p *Proof, id, description string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:          id,
		Timestamp:   at,
		ProofHash:   p.Hash,
		Description: description,
	}
}

// NewRegistryRecord builds the registry export for p.
func NewRegistryRecord(p *Proof, at time.Time) RegistryRecord {
	return RegistryRecord{
		Theorem:      p.Theorem,
		SymbolicExpr: symbolic.Srepr(p.Forward),
		LaTeX:        symbolic.LaTeX(p.Forward),
		Inverse:      symbolic.Srepr(p.Inverse),
		ProofHash:    p.Hash,
		Timestamp:    at,
	}
}

// NewValidationReport builds a report from validator results.
func NewValidationReport(runID string, results []symbolic.Result, at time.Time) ValidationReport {
	report := ValidationReport{
		RunID:     runID,
		Timestamp: at,
		Total:     len(results),
		Counts: map[symbolic.Classification]int{
			symbolic.Valid:           0,
			symbolic.InvalidSyntax:   0,
			symbolic.IntegrityBreach: 0,
		},
		Entries: make([]ValidationEntry, 0, len(results)),
	}
	for _, r := range results {
		entry := ValidationEntry{
			Index:   r.Index,
			Input:   r.Input,
			Status:  r.Classification,
			Message: r.Message(),
		}
		if r.Simplified != nil {
			entry.Simplified = r.Simplified.String()
		}
		report.Counts[r.Classification]++
		report.Entries = append(report.Entries, entry)
	}
	return report
}

// snippetTemplate uses [[ ]] delimiters so LaTeX braces pass through.
const snippetTemplate = `\section*{[[.Theorem]]}
Given the transformation $f([[.Var]]) = [[.Forward]]$, its inverse is $f^{-1}([[.Var]]) = [[.Inverse]]$.\\
We verify:
$$[[.Composition]] = [[.Var]].$$\\
[[if .Holds]]Thus, the transformation is reversible.[[else]]The residual $[[.Residual]]$ is non-zero, so the transformation is not reversible.[[end]]\\
Proof hash: \texttt{[[.Hash]]}.
`

var snippet = template.Must(template.New("snippet").Delims("[[", "]]").Parse(snippetTemplate))

// Snippet renders a LaTeX documentation block for p.
func Snippet(p *Proof) (string, error) {
	data := map[string]any{
		"Theorem":     p.Theorem,
		"Var":         latexSymbol(p.Transform.Variable),
		"Forward":     symbolic.LaTeX(p.Transform.Expr()),
		"Inverse":     symbolic.LaTeX(p.Inverse),
		"Composition": symbolic.LaTeX(p.Composition),
		"Holds":       p.Holds(),
		"Residual":    symbolic.LaTeX(p.Residual),
		"Hash":        p.Hash,
	}
	var buf bytes.Buffer
	if err := snippet.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("proof: snippet: %w", err)
	}
	return buf.String(), nil
}

func latexSymbol(name string) string {
	return symbolic.LaTeX(symbolic.NewSymbol(name))
}

// FileDescription turns a free-text description into a key segment.
func FileDescription(description string) string {
	return strings.ReplaceAll(strings.TrimSpace(description), " ", "_")
}
