package udiff

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes carried by *Error.
const (
	CodeMalformedHeader = "MALFORMED_HEADER"
	CodeMalformedHunk   = "MALFORMED_HUNK"
	CodeEmptyPatch      = "EMPTY_PATCH"
	CodeHunkApplyFailed = "HUNK_APPLY_FAILED"
	CodeBinaryPatch     = "BINARY_PATCH"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrMalformedHeader = errors.New("malformed file header")
	ErrMalformedHunk   = errors.New("malformed hunk")
	ErrEmptyPatch      = errors.New("patch contains no file headers")
	ErrHunkApplyFailed = errors.New("hunk could not be applied")
	ErrBinaryPatch     = errors.New("binary patches are not supported")
)

// HunkStatus tracks how a hunk was applied.
type HunkStatus struct {
	Number int    `json:"number"`
	Status string `json:"status"`
	// Line is the 1-based line of the original file where the hunk matched.
	Line int `json:"line,omitempty"`
	// Offset is the distance between the matched and the declared position.
	Offset int `json:"offset,omitempty"`
}

// Hunk status values.
const (
	StatusApplied = "applied"
	StatusNoMatch = "no-match"
)

// FailedHunk stores the textual form of the hunk that could not be applied.
type FailedHunk struct {
	Number        int      `json:"number"`
	RawPatchLines []string `json:"rawPatchLines"`
}

// Candidate is the closest location found for a hunk that failed to apply.
type Candidate struct {
	// Line is 1-based.
	Line int
	// Exact is true when the whole window matched verbatim at Line, which means it
	// only failed because it lies outside the search radius.
	Exact bool
}

// Error represents a structured failure while parsing or applying a patch. It
// satisfies the error interface and unwraps to one of the Err* sentinels.
type Error struct {
	Code    string
	Message string
	// Path is the working tree path of the file being applied.
	Path string
	// Line is the 1-based diff text line for parse errors and the declared original
	// line for apply errors.
	Line         int
	Hunk         int
	Radius       int
	Candidate    *Candidate
	HunkStatuses []HunkStatus
	FailedHunk   *FailedHunk
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if sentinel := e.Unwrap(); sentinel != nil {
		return sentinel.Error()
	}
	return "patch error"
}

// Unwrap returns the sentinel error for the code.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeMalformedHeader:
		return ErrMalformedHeader
	case CodeMalformedHunk:
		return ErrMalformedHunk
	case CodeEmptyPatch:
		return ErrEmptyPatch
	case CodeHunkApplyFailed:
		return ErrHunkApplyFailed
	case CodeBinaryPatch:
		return ErrBinaryPatch
	}
	return nil
}

func parseError(code string, line int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Line:    line,
		Message: fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)),
	}
}

func describeHunkStatuses(statuses []HunkStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	var applied []string
	var failed string
	for _, status := range statuses {
		if status.Status == StatusApplied {
			applied = append(applied, fmt.Sprintf("%d", status.Number))
			continue
		}
		if failed == "" {
			failed = fmt.Sprintf("No match for hunk %d.", status.Number)
		}
	}

	parts := make([]string, 0, 2)
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Hunks applied: %s.", strings.Join(applied, ", ")))
	}
	if failed != "" {
		parts = append(parts, failed)
	}
	return strings.Join(parts, "\n")
}

func describeCandidate(err *Error) string {
	if err.Candidate == nil {
		return "No similar text found in the file."
	}
	offset := err.Candidate.Line - err.Line
	if err.Candidate.Exact {
		return fmt.Sprintf("Hunk matches at line %d (offset %+d), outside the search radius of %d lines.",
			err.Candidate.Line, offset, err.Radius)
	}
	return fmt.Sprintf("Closest similar text starts at line %d (offset %+d).", err.Candidate.Line, offset)
}

// FormatError renders an error into a human readable message. Apply failures list
// the hunks that did apply, the nearest candidate and the offending hunk.
func FormatError(err error) string {
	if err == nil {
		return "Unknown error occurred."
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return err.Error()
	}
	message := pe.Message
	if message == "" {
		message = pe.Error()
	}
	if pe.Code != CodeHunkApplyFailed {
		return message
	}

	parts := []string{message}
	if summary := describeHunkStatuses(pe.HunkStatuses); summary != "" {
		parts = append(parts, "", summary)
	}
	parts = append(parts, describeCandidate(pe))
	if pe.FailedHunk != nil && len(pe.FailedHunk.RawPatchLines) > 0 {
		parts = append(parts, "", "Offending hunk:")
		parts = append(parts, strings.Join(pe.FailedHunk.RawPatchLines, "\n"))
	}
	return strings.Join(parts, "\n")
}
