package udiff

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultSearchRadius is the number of lines searched on each side of a hunk's
// expected position when the hunk does not match there exactly.
const DefaultSearchRadius = 64

// Options configure how hunks are matched against file content.
type Options struct {
	// SearchRadius bounds the offset search around the expected position. Zero
	// selects DefaultSearchRadius and a negative value only allows exact positions.
	SearchRadius int
	// IgnoreWhitespace compares lines with all whitespace removed. Context lines
	// keep the file's own text in the output.
	IgnoreWhitespace bool
}

func (o Options) radius() int {
	switch {
	case o.SearchRadius < 0:
		return 0
	case o.SearchRadius == 0:
		return DefaultSearchRadius
	default:
		return o.SearchRadius
	}
}

// Application is the outcome of applying one PatchedFile.
type Application struct {
	Content string
	Hunks   []HunkStatus
}

// Apply applies the file's hunks to content using default options and returns the
// patched content. Content is returned unchanged when the file has no hunks.
func (f *PatchedFile) Apply(content string) (string, error) {
	app, err := f.ApplyWithOptions(content, Options{})
	if err != nil {
		return "", err
	}
	return app.Content, nil
}

// ApplyWithOptions applies the file's hunks in order. The first hunk that cannot be
// located aborts the whole file and is reported as an *Error with code
// CodeHunkApplyFailed; no partially patched content is returned.
func (f *PatchedFile) ApplyWithOptions(content string, opts Options) (*Application, error) {
	path := f.Path()
	if f.IsBinary {
		return nil, &Error{
			Code:    CodeBinaryPatch,
			Path:    path,
			Message: fmt.Sprintf("%s: binary patches are not supported", path),
		}
	}
	if len(f.Hunks) == 0 {
		return &Application{Content: content, Hunks: []HunkStatus{}}, nil
	}

	doc := splitDocument(content)
	st := newState(path, doc, opts)
	out := make([]textLine, 0, len(doc.lines))
	noNewline := false
	emit := func(lines []textLine, last bool) {
		if len(lines) == 0 {
			return
		}
		out = append(out, lines...)
		noNewline = last
	}

	for index, hunk := range f.Hunks {
		number := index + 1
		matchIndex, replacement, err := applyHunk(st, hunk)
		if err != nil {
			return nil, enhanceHunkError(err, st, hunk, number)
		}
		emit(doc.span(st.cursor, matchIndex), false)
		end := matchIndex + hunk.OldLines
		emit(replacement, end == len(st.lines) && hunk.NewNoNewline())

		st.cursor = end
		st.drift = matchIndex - hunk.oldIndex()
		st.hunkStatuses = append(st.hunkStatuses, HunkStatus{
			Number: number,
			Status: StatusApplied,
			Line:   matchIndex + 1,
			Offset: st.drift,
		})
	}
	emit(doc.span(st.cursor, len(doc.lines)), !doc.trailingNewline)

	return &Application{
		Content: doc.join(out, noNewline),
		Hunks:   st.hunkStatuses,
	}, nil
}

// textLine is one output line and the terminator written after it. An empty eol
// means the line had none.
type textLine struct {
	text string
	eol  string
}

// document is file content split into lines. Each line keeps its own
// terminator so untouched lines are written back byte for byte.
type document struct {
	lines []string
	eols  []string
	// eol is the file's most common terminator, given to lines that gain one.
	eol             string
	trailingNewline bool
}

func splitDocument(content string) document {
	doc := document{lines: []string{}, eols: []string{}, eol: "\n"}
	crlf, lf := 0, 0
	for rest := content; rest != ""; {
		text, eol := rest, ""
		rest = ""
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text, rest, eol = text[:i], text[i+1:], "\n"
			if strings.HasSuffix(text, "\r") {
				text, eol = text[:len(text)-1], "\r\n"
				crlf++
			} else {
				lf++
			}
		}
		doc.lines = append(doc.lines, text)
		doc.eols = append(doc.eols, eol)
	}
	if crlf > lf {
		doc.eol = "\r\n"
	}
	doc.trailingNewline = strings.HasSuffix(content, "\n")
	return doc
}

func (d document) span(from, to int) []textLine {
	lines := make([]textLine, 0, to-from)
	for i := from; i < to; i++ {
		lines = append(lines, textLine{text: d.lines[i], eol: d.eols[i]})
	}
	return lines
}

func (d document) join(lines []textLine, noNewline bool) string {
	var b strings.Builder
	for i, line := range lines {
		b.WriteString(line.text)
		eol := line.eol
		switch {
		case i == len(lines)-1 && noNewline:
			eol = ""
		case eol == "":
			eol = d.eol
		}
		b.WriteString(eol)
	}
	return b.String()
}

// state tracks the progress of one file while its hunks are applied.
type state struct {
	path string
	// lines is the original content; it is never modified.
	lines []string
	eols  []string
	eol   string
	// keys are the lines as compared against hunk windows.
	keys         []string
	options      Options
	cursor       int
	drift        int
	hunkStatuses []HunkStatus
}

func newState(path string, doc document, opts Options) *state {
	st := &state{
		path:         path,
		lines:        doc.lines,
		eols:         doc.eols,
		eol:          doc.eol,
		keys:         doc.lines,
		options:      opts,
		hunkStatuses: []HunkStatus{},
	}
	if opts.IgnoreWhitespace {
		st.keys = normalizeLines(doc.lines)
	}
	return st
}

// applyHunk locates the hunk in the remaining lines and returns the match position
// together with the lines replacing the hunk's window.
func applyHunk(st *state, hunk Hunk) (int, []textLine, error) {
	if st == nil {
		return 0, nil, errors.New("missing file state")
	}

	before := hunk.Before()
	if st.options.IgnoreWhitespace {
		before = normalizeLines(before)
	}
	expected := hunk.oldIndex() + st.drift
	radius := st.options.radius()

	matchIndex := findWindow(st.keys, before, st.cursor, expected, radius, hunk.OldNoNewline())
	if matchIndex == -1 {
		return 0, nil, &Error{
			Code:      CodeHunkApplyFailed,
			Message:   fmt.Sprintf("Hunk not found in %s near line %d (search radius %d).", st.path, hunk.OldStart, radius),
			Path:      st.path,
			Line:      hunk.OldStart,
			Radius:    radius,
			Candidate: nearestCandidate(st.keys, before, expected),
		}
	}

	replacement := make([]textLine, 0, hunk.NewLines)
	pos := matchIndex
	replaced := ""
	for _, line := range hunk.Lines {
		switch line.Kind {
		case LineContext:
			replacement = append(replacement, textLine{text: st.lines[pos], eol: st.eols[pos]})
			replaced = ""
			pos++
		case LineRemoved:
			replaced = st.eols[pos]
			pos++
		case LineAdded:
			replacement = append(replacement, textLine{text: line.Text, eol: st.addedEOL(replaced, matchIndex, replacement)})
		}
	}
	return matchIndex, replacement, nil
}

// addedEOL picks the terminator for an added line: that of the line it replaces,
// else of the line it follows, else the file's most common one.
func (st *state) addedEOL(replaced string, matchIndex int, sofar []textLine) string {
	if replaced != "" {
		return replaced
	}
	if n := len(sofar); n > 0 && sofar[n-1].eol != "" {
		return sofar[n-1].eol
	}
	if len(sofar) == 0 && matchIndex > 0 && st.eols[matchIndex-1] != "" {
		return st.eols[matchIndex-1]
	}
	return st.eol
}

// findWindow returns the index where needle occurs in haystack, trying expected
// first and then alternating expected-d, expected+d for d up to radius. Matches
// before cursor are never accepted and requireEOF demands that the window ends the
// file. It returns -1 when no position qualifies.
func findWindow(haystack, needle []string, cursor, expected, radius int, requireEOF bool) int {
	fits := func(index int) bool {
		if index < cursor || index+len(needle) > len(haystack) {
			return false
		}
		if requireEOF && index+len(needle) != len(haystack) {
			return false
		}
		return windowMatches(haystack, needle, index)
	}
	if fits(expected) {
		return expected
	}
	for d := 1; d <= radius; d++ {
		if fits(expected - d) {
			return expected - d
		}
		if fits(expected + d) {
			return expected + d
		}
	}
	return -1
}

func windowMatches(haystack, needle []string, index int) bool {
	for j := range needle {
		if haystack[index+j] != needle[j] {
			return false
		}
	}
	return true
}

// nearestCandidate looks for the closest place a failed hunk could have meant: the
// nearest verbatim occurrence anywhere in the file, or else the best fuzzy anchor.
func nearestCandidate(haystack, needle []string, expected int) *Candidate {
	if len(needle) == 0 || len(haystack) == 0 {
		return nil
	}
	best := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if !windowMatches(haystack, needle, i) {
			continue
		}
		if best == -1 || abs(i-expected) < abs(best-expected) {
			best = i
		}
	}
	if best >= 0 {
		return &Candidate{Line: best + 1, Exact: true}
	}
	if line := fuzzyAnchor(haystack, needle, expected); line >= 0 {
		return &Candidate{Line: line + 1}
	}
	return nil
}

// fuzzyAnchor uses diff-match-patch's bitap matcher to find the line closest to
// expected that resembles the first non-blank line of the window.
func fuzzyAnchor(haystack, needle []string, expected int) int {
	pattern := ""
	for _, line := range needle {
		if strings.TrimSpace(line) != "" {
			pattern = line
			break
		}
	}
	if pattern == "" {
		return -1
	}
	matcher := diffmatchpatch.New()
	if len(pattern) > matcher.MatchMaxBits {
		pattern = pattern[:matcher.MatchMaxBits]
	}

	loc := 0
	for i := 0; i < len(haystack) && i < expected; i++ {
		loc += len(haystack[i]) + 1
	}
	text := strings.Join(haystack, "\n")
	idx := matcher.MatchMain(text, pattern, loc)
	if idx < 0 {
		return -1
	}
	return strings.Count(text[:idx], "\n")
}

func normalizeLines(lines []string) []string {
	normalized := make([]string, len(lines))
	for i, line := range lines {
		normalized[i] = normalizeLine(line)
	}
	return normalized
}

func normalizeLine(line string) string {
	if line == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(line))
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func enhanceHunkError(err error, st *state, hunk Hunk, number int) *Error {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = &Error{Code: CodeHunkApplyFailed, Message: err.Error()}
	}
	if pe.Code == "" {
		pe.Code = CodeHunkApplyFailed
	}
	if pe.Path == "" && st != nil {
		pe.Path = st.path
	}
	pe.Hunk = number

	var statuses []HunkStatus
	if st != nil {
		statuses = append(statuses, st.hunkStatuses...)
	}
	pe.HunkStatuses = append(statuses, HunkStatus{Number: number, Status: StatusNoMatch})

	if pe.FailedHunk == nil {
		pe.FailedHunk = &FailedHunk{Number: number, RawPatchLines: hunk.RawLines()}
	}
	return pe
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
