// Package report builds the machine readable outcome of an apply run.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/asynkron/udiff/internal/schema"
	"github.com/asynkron/udiff/pkg/udiff"
)

var (
	reportSchemaLoader     gojsonschema.JSONLoader
	reportSchemaLoaderErr  error
	reportSchemaLoaderOnce sync.Once
)

// Report is the JSON document printed by "udiff apply --json".
type Report struct {
	OK      bool           `json:"ok"`
	DryRun  bool           `json:"dryRun"`
	Results []udiff.Result `json:"results"`
	Error   *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes why a run failed.
type ErrorDetail struct {
	Code      string             `json:"code,omitempty"`
	Message   string             `json:"message"`
	Path      string             `json:"path,omitempty"`
	Line      int                `json:"line,omitempty"`
	Hunk      int                `json:"hunk,omitempty"`
	Candidate *CandidateDetail   `json:"candidate,omitempty"`
	Hunks     []udiff.HunkStatus `json:"hunks,omitempty"`
}

// CandidateDetail is the nearest location of a hunk that failed to apply.
type CandidateDetail struct {
	Line  int  `json:"line"`
	Exact bool `json:"exact"`
}

// ValidationError lists the schema violations of a report.
type ValidationError struct {
	Issues []string
}

func (e ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "report failed schema validation"
	}
	return strings.Join(e.Issues, "; ")
}

// Build assembles a report from the results committed so far and the error that
// stopped the run, if any.
func Build(results []udiff.Result, err error, dryRun bool) Report {
	if results == nil {
		results = []udiff.Result{}
	}
	r := Report{OK: err == nil, DryRun: dryRun, Results: results}
	if err == nil {
		return r
	}

	detail := &ErrorDetail{Message: err.Error()}
	var pe *udiff.Error
	if errors.As(err, &pe) {
		detail.Code = pe.Code
		detail.Path = pe.Path
		detail.Line = pe.Line
		detail.Hunk = pe.Hunk
		detail.Hunks = pe.HunkStatuses
		if pe.Candidate != nil {
			detail.Candidate = &CandidateDetail{Line: pe.Candidate.Line, Exact: pe.Candidate.Exact}
		}
	}
	r.Error = detail
	return r
}

// Validate checks the report against the published schema.
func Validate(r Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return ValidateJSON(raw)
}

// ValidateJSON checks an encoded report against the published schema.
func ValidateJSON(raw []byte) error {
	loader, err := loadReportSchema()
	if err != nil {
		return fmt.Errorf("report: load schema: %w", err)
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("report: schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return ValidationError{Issues: issues}
}

// Write validates the report and writes it as indented JSON.
func Write(w io.Writer, r Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	if err := ValidateJSON(raw); err != nil {
		return err
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

func loadReportSchema() (gojsonschema.JSONLoader, error) {
	reportSchemaLoaderOnce.Do(func() {
		schemaMap, err := schema.ReportSchema()
		if err != nil {
			reportSchemaLoaderErr = err
			return
		}
		reportSchemaLoader = gojsonschema.NewGoLoader(schemaMap)
	})
	if reportSchemaLoaderErr != nil {
		return nil, reportSchemaLoaderErr
	}
	return reportSchemaLoader, nil
}
