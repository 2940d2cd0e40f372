package udiff

import (
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

const gitHeaderPrefix = "diff --git "

// extendedHeaderPrefixes lists the git metadata lines that may sit between
// "diff --git" and "---".
var extendedHeaderPrefixes = []string{
	"old mode ",
	"new mode ",
	"deleted file mode ",
	"new file mode ",
	"copy from ",
	"copy to ",
	"rename from ",
	"rename to ",
	"rename old ",
	"rename new ",
	"similarity index ",
	"dissimilarity index ",
	"index ",
	"Binary files ",
	"GIT binary patch",
}

// scanner is a cursor over the lines of a diff text.
type scanner struct {
	lines []string
	pos   int
}

func newScanner(text string) *scanner {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return &scanner{lines: lines}
}

func (s *scanner) done() bool {
	return s.pos >= len(s.lines)
}

func (s *scanner) peek() string {
	if s.done() {
		return ""
	}
	return s.lines[s.pos]
}

func (s *scanner) next() string {
	line := s.peek()
	s.pos++
	return line
}

// lineNo is the 1-based number of the line under the cursor.
func (s *scanner) lineNo() int {
	return s.pos + 1
}

// blankRunEndsAt reports whether the lines from the cursor are blank up to a line
// starting with prefix.
func (s *scanner) blankRunEndsAt(prefix string) bool {
	for i := s.pos; i < len(s.lines); i++ {
		line := s.lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.HasPrefix(line, prefix)
	}
	return false
}

// Parse converts unified diff text into a PatchSet. It fails without returning a
// partial result when a file header or hunk is malformed, and with ErrEmptyPatch
// when the text holds no file header at all.
func Parse(text string) (*PatchSet, error) {
	s := newScanner(text)
	set := &PatchSet{}
	for !s.done() {
		line := s.peek()
		switch {
		case strings.HasPrefix(line, gitHeaderPrefix), strings.HasPrefix(line, "--- "):
			file, err := parseFile(s)
			if err != nil {
				return nil, err
			}
			set.Files = append(set.Files, file)
		case strings.HasPrefix(line, "+++ "):
			return nil, parseError(CodeMalformedHeader, s.lineNo(), "%q is not preceded by a \"---\" line", line)
		case strings.HasPrefix(line, "@@ "):
			return nil, parseError(CodeMalformedHeader, s.lineNo(), "hunk header %q appears before any file header", line)
		default:
			s.next()
		}
	}
	if len(set.Files) == 0 {
		return nil, &Error{Code: CodeEmptyPatch, Message: "patch contains no file headers"}
	}
	return set, nil
}

// parseFile reads one file section: an optional "diff --git" line with its extended
// headers, the "---"/"+++" pair and the hunks that follow.
func parseFile(s *scanner) (*PatchedFile, error) {
	file := &PatchedFile{}
	git := gitHeader{}
	if strings.HasPrefix(s.peek(), gitHeaderPrefix) {
		line := s.next()
		file.Header = append(file.Header, line)
		git.oldPath, git.newPath = parseGitHeaderPaths(strings.TrimPrefix(line, gitHeaderPrefix))
		for !s.done() && isExtendedHeader(s.peek()) {
			line := s.next()
			file.Header = append(file.Header, line)
			git.record(line)
			if strings.HasPrefix(line, "Binary files ") || strings.HasPrefix(line, "GIT binary patch") {
				file.IsBinary = true
			}
		}
	}

	if strings.HasPrefix(s.peek(), "+++ ") {
		return nil, parseError(CodeMalformedHeader, s.lineNo(), "\"+++\" line found before \"---\" line")
	}
	if !strings.HasPrefix(s.peek(), "--- ") {
		if strings.HasPrefix(s.peek(), "@@ ") {
			return nil, parseError(CodeMalformedHeader, s.lineNo(), "hunk header %q is missing its \"---\"/\"+++\" lines", s.peek())
		}
		git.resolve(file)
		return finishFile(file), nil
	}

	file.SourcePath, file.SourceTimestamp = splitHeaderPath(strings.TrimPrefix(s.next(), "--- "))
	if !strings.HasPrefix(s.peek(), "+++ ") {
		return nil, parseError(CodeMalformedHeader, s.lineNo(), "expected \"+++\" line after \"--- %s\"", file.SourcePath)
	}
	file.TargetPath, file.TargetTimestamp = splitHeaderPath(strings.TrimPrefix(s.next(), "+++ "))

	prevEnd := 0
	for !s.done() {
		if !strings.HasPrefix(s.peek(), "@@") {
			if strings.TrimSpace(s.peek()) == "" && s.blankRunEndsAt("@@") {
				s.next()
				continue
			}
			break
		}
		headerLine := s.lineNo()
		hunk, err := parseHunk(s)
		if err != nil {
			return nil, err
		}
		start := hunk.oldIndex()
		if len(file.Hunks) > 0 && start < prevEnd {
			return nil, parseError(CodeMalformedHunk, headerLine, "hunk %q overlaps or precedes the previous hunk", hunk.Header())
		}
		prevEnd = start + hunk.OldLines
		file.Hunks = append(file.Hunks, hunk)
	}
	return finishFile(file), nil
}

func finishFile(file *PatchedFile) *PatchedFile {
	file.LocalSourcePath = LocalSourcePath(file.SourcePath)
	file.LocalTargetPath = LocalTargetPath(file.TargetPath)
	return file
}

// parseHunk reads one hunk starting at its "@@" header. Body lines are consumed
// until the declared line counts are satisfied.
func parseHunk(s *scanner) (Hunk, error) {
	headerLine := s.lineNo()
	header := s.next()
	m := hunkHeaderRE.FindStringSubmatch(header)
	if m == nil {
		return Hunk{}, parseError(CodeMalformedHunk, headerLine, "invalid hunk header %q", header)
	}
	values := make([]int, 4)
	for i, raw := range m[1:5] {
		if raw == "" {
			values[i] = 1
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Hunk{}, parseError(CodeMalformedHunk, headerLine, "invalid number %q in hunk header", raw)
		}
		values[i] = n
	}
	hunk := Hunk{
		OldStart: values[0],
		OldLines: values[1],
		NewStart: values[2],
		NewLines: values[3],
		Section:  strings.TrimSpace(m[5]),
	}
	if hunk.OldStart == 0 && hunk.OldLines > 0 {
		return Hunk{}, parseError(CodeMalformedHunk, headerLine, "hunk header %q starts at line 0 but spans original lines", header)
	}

	oldLeft, newLeft := hunk.OldLines, hunk.NewLines
	for !s.done() && (oldLeft > 0 || newLeft > 0) {
		line := s.peek()
		if strings.HasPrefix(line, `\`) {
			if len(hunk.Lines) == 0 {
				return Hunk{}, parseError(CodeMalformedHunk, s.lineNo(), "no-newline marker before any hunk line")
			}
			hunk.Lines[len(hunk.Lines)-1].NoNewline = true
			s.next()
			continue
		}

		var kind LineKind
		text := ""
		switch {
		case line == "":
			kind = LineContext
		case line[0] == ' ':
			kind, text = LineContext, line[1:]
		case line[0] == '-':
			kind, text = LineRemoved, line[1:]
		case line[0] == '+':
			kind, text = LineAdded, line[1:]
		default:
			return Hunk{}, parseError(CodeMalformedHunk, s.lineNo(),
				"hunk %q is truncated: %d original and %d new lines missing", header, oldLeft, newLeft)
		}

		switch kind {
		case LineContext:
			if oldLeft == 0 || newLeft == 0 {
				return Hunk{}, countMismatch(s, header)
			}
			oldLeft--
			newLeft--
		case LineRemoved:
			if oldLeft == 0 {
				return Hunk{}, countMismatch(s, header)
			}
			oldLeft--
		case LineAdded:
			if newLeft == 0 {
				return Hunk{}, countMismatch(s, header)
			}
			newLeft--
		}
		hunk.Lines = append(hunk.Lines, HunkLine{Kind: kind, Text: text})
		s.next()
	}
	if oldLeft > 0 || newLeft > 0 {
		return Hunk{}, parseError(CodeMalformedHunk, s.lineNo(),
			"hunk %q is truncated: %d original and %d new lines missing", header, oldLeft, newLeft)
	}

	if strings.HasPrefix(s.peek(), `\`) && len(hunk.Lines) > 0 {
		hunk.Lines[len(hunk.Lines)-1].NoNewline = true
		s.next()
	}
	if !s.done() && isOverflowLine(s.peek()) {
		return Hunk{}, countMismatch(s, header)
	}
	return hunk, nil
}

func countMismatch(s *scanner, header string) *Error {
	return parseError(CodeMalformedHunk, s.lineNo(), "hunk %q has more lines than its header declares", header)
}

// isOverflowLine reports whether a line after a complete hunk still looks like hunk
// body, which means the header under-counted.
func isOverflowLine(line string) bool {
	if line == "" || line == "-- " {
		return false
	}
	switch line[0] {
	case ' ':
		return true
	case '-':
		return !strings.HasPrefix(line, "--- ")
	case '+':
		return !strings.HasPrefix(line, "+++ ")
	}
	return false
}

func isExtendedHeader(line string) bool {
	for _, prefix := range extendedHeaderPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// splitHeaderPath separates the path of a "---"/"+++" line from the optional tab
// separated timestamp.
func splitHeaderPath(raw string) (path, timestamp string) {
	path, timestamp, _ = strings.Cut(raw, "\t")
	return strings.TrimSpace(path), strings.TrimSpace(timestamp)
}

// gitHeader collects what the extended headers say about a file section that may
// lack "---"/"+++" lines.
type gitHeader struct {
	oldPath    string
	newPath    string
	renameFrom string
	renameTo   string
	created    bool
	deleted    bool
}

func (g *gitHeader) record(line string) {
	switch {
	case strings.HasPrefix(line, "rename from "):
		g.renameFrom = strings.TrimSpace(strings.TrimPrefix(line, "rename from "))
	case strings.HasPrefix(line, "rename to "):
		g.renameTo = strings.TrimSpace(strings.TrimPrefix(line, "rename to "))
	case strings.HasPrefix(line, "copy from "):
		g.renameFrom = strings.TrimSpace(strings.TrimPrefix(line, "copy from "))
	case strings.HasPrefix(line, "copy to "):
		g.renameTo = strings.TrimSpace(strings.TrimPrefix(line, "copy to "))
	case strings.HasPrefix(line, "new file mode "):
		g.created = true
	case strings.HasPrefix(line, "deleted file mode "):
		g.deleted = true
	}
}

// resolve fills the paths of a header-only section (rename, mode change, empty or
// binary file).
func (g *gitHeader) resolve(file *PatchedFile) {
	file.SourcePath, file.TargetPath = g.oldPath, g.newPath
	if g.renameFrom != "" {
		file.SourcePath = sourcePrefix + "/" + g.renameFrom
	}
	if g.renameTo != "" {
		file.TargetPath = targetPrefix + "/" + g.renameTo
	}
	if g.created {
		file.SourcePath = DevNull
	}
	if g.deleted {
		file.TargetPath = DevNull
	}
}

// parseGitHeaderPaths splits the "a/<old> b/<new>" part of a "diff --git" line. When
// the names are identical the split is unambiguous even if they contain spaces.
func parseGitHeaderPaths(rest string) (oldPath, newPath string) {
	rest = strings.TrimSpace(rest)
	if len(rest)%2 == 1 {
		half := len(rest) / 2
		left, right := rest[:half], rest[half+1:]
		if rest[half] == ' ' && StripPrefix(left, sourcePrefix) == StripPrefix(right, targetPrefix) {
			return left, right
		}
	}
	if idx := strings.LastIndex(rest, " "+targetPrefix+"/"); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	if left, right, ok := strings.Cut(rest, " "); ok {
		return left, right
	}
	return rest, rest
}
