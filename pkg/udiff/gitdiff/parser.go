// Package gitdiff parses unified diffs with bluekeyes/go-gitdiff and converts the
// result into the udiff data model, so both parsers feed the same applier.
package gitdiff

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/asynkron/udiff/pkg/udiff"
)

var errorLineRE = regexp.MustCompile(`^gitdiff: line (\d+): (.*)$`)

// Parser parses unified diff content using go-gitdiff.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse is a convenience wrapper around Parser.Parse for diff text.
func Parse(text string) (*udiff.PatchSet, error) {
	return NewParser().Parse(strings.NewReader(text))
}

// Parse reads diff content and returns the parsed patch set. Errors are reported
// as *udiff.Error so callers can match the same sentinels as with udiff.Parse.
func (p *Parser) Parse(r io.Reader) (*udiff.PatchSet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	text := string(raw)

	files, _, err := gitdiff.Parse(strings.NewReader(text))
	if err != nil {
		return nil, convertError(err)
	}
	if len(files) == 0 {
		return nil, &udiff.Error{Code: udiff.CodeEmptyPatch, Message: "patch contains no file headers"}
	}

	gitStyle := strings.HasPrefix(text, "diff --git ") || strings.Contains(text, "\ndiff --git ")
	set := &udiff.PatchSet{Files: make([]*udiff.PatchedFile, 0, len(files))}
	for _, f := range files {
		file, err := convertFile(f, gitStyle)
		if err != nil {
			return nil, err
		}
		set.Files = append(set.Files, file)
	}
	return set, nil
}

func convertFile(f *gitdiff.File, gitStyle bool) (*udiff.PatchedFile, error) {
	hunks := make([]udiff.Hunk, 0, len(f.TextFragments))
	prevEnd := 0
	for _, frag := range f.TextFragments {
		hunk := convertFragment(frag)
		start := hunk.OldStart - 1
		if hunk.OldLines == 0 {
			start = hunk.OldStart
		}
		if len(hunks) > 0 && start < prevEnd {
			name := f.NewName
			if name == "" {
				name = f.OldName
			}
			return nil, &udiff.Error{
				Code:    udiff.CodeMalformedHunk,
				Path:    name,
				Message: fmt.Sprintf("%s: hunk %q overlaps or precedes the previous hunk", name, hunk.Header()),
			}
		}
		prevEnd = start + hunk.OldLines
		hunks = append(hunks, hunk)
	}

	source, target := filePaths(f, gitStyle)
	file := udiff.NewPatchedFile(source, target, hunks)
	if !gitStyle {
		// go-gitdiff keeps traditional names verbatim and collapses both sides onto
		// one name, which may carry either prefix.
		if !file.IsNew() {
			file.LocalSourcePath = stripSidePrefix(source)
		}
		if !file.IsDelete() {
			file.LocalTargetPath = stripSidePrefix(target)
		}
	}
	file.IsBinary = f.IsBinary
	return file, nil
}

// stripSidePrefix removes at most one leading "a/" or "b/" segment.
func stripSidePrefix(path string) string {
	if local := udiff.LocalSourcePath(path); local != path {
		return local
	}
	return udiff.LocalTargetPath(path)
}

// filePaths rebuilds the "---" and "+++" paths. go-gitdiff strips the a/ and b/
// prefixes from git diffs; they are restored so both parsers agree.
func filePaths(f *gitdiff.File, gitStyle bool) (string, string) {
	source, target := f.OldName, f.NewName
	if gitStyle {
		source, target = "a/"+source, "b/"+target
	}
	if f.IsNew {
		source = udiff.DevNull
	}
	if f.IsDelete {
		target = udiff.DevNull
	}
	return source, target
}

func convertFragment(frag *gitdiff.TextFragment) udiff.Hunk {
	hunk := udiff.Hunk{
		OldStart: int(frag.OldPosition),
		OldLines: int(frag.OldLines),
		NewStart: int(frag.NewPosition),
		NewLines: int(frag.NewLines),
		Section:  frag.Comment,
		Lines:    make([]udiff.HunkLine, 0, len(frag.Lines)),
	}

	for _, l := range frag.Lines {
		line := udiff.HunkLine{
			Text:      strings.TrimSuffix(strings.TrimSuffix(l.Line, "\n"), "\r"),
			NoNewline: l.NoEOL(),
		}
		switch l.Op {
		case gitdiff.OpAdd:
			line.Kind = udiff.LineAdded
		case gitdiff.OpDelete:
			line.Kind = udiff.LineRemoved
		default:
			line.Kind = udiff.LineContext
		}
		hunk.Lines = append(hunk.Lines, line)
	}
	return hunk
}

// convertError maps go-gitdiff's text errors onto the udiff error codes.
func convertError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &udiff.Error{Code: udiff.CodeMalformedHunk, Message: err.Error()}
	}

	message := err.Error()
	line := 0
	if m := errorLineRE.FindStringSubmatch(message); m != nil {
		line, _ = strconv.Atoi(m[1])
		message = m[2]
	}

	code := udiff.CodeMalformedHeader
	switch {
	case strings.Contains(message, "without file header"):
	case strings.Contains(message, "fragment"),
		strings.Contains(message, "line operation"),
		strings.Contains(message, "contents"):
		code = udiff.CodeMalformedHunk
	}
	if line > 0 {
		message = fmt.Sprintf("line %d: %s", line, message)
	}
	return &udiff.Error{Code: code, Line: line, Message: message}
}
