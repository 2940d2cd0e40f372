package udiff

// DevNull is the path diff tools use for the missing side of an added or deleted file.
const DevNull = "/dev/null"

// LineKind identifies the role of a line inside a hunk.
type LineKind int

const (
	// LineContext is a line present unchanged on both sides (" " marker).
	LineContext LineKind = iota
	// LineRemoved is a line only present in the original file ("-" marker).
	LineRemoved
	// LineAdded is a line only present in the patched file ("+" marker).
	LineAdded
)

// String returns the diff marker for the kind.
func (k LineKind) String() string {
	switch k {
	case LineRemoved:
		return "-"
	case LineAdded:
		return "+"
	default:
		return " "
	}
}

// HunkLine is one body line of a hunk without its marker and line terminator.
type HunkLine struct {
	Kind LineKind
	Text string
	// NoNewline is set when the line was followed by "\ No newline at end of file".
	NoNewline bool
}

// Hunk is one "@@ -os,ol +ns,nl @@" block.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	// Section is the optional text after the closing "@@", usually a function name.
	Section string
	Lines   []HunkLine
}

// Before returns the text of the context and removed lines, i.e. the window the hunk
// expects to find in the original file.
func (h Hunk) Before() []string {
	out := make([]string, 0, h.OldLines)
	for _, line := range h.Lines {
		if line.Kind != LineAdded {
			out = append(out, line.Text)
		}
	}
	return out
}

// After returns the text of the context and added lines.
func (h Hunk) After() []string {
	out := make([]string, 0, h.NewLines)
	for _, line := range h.Lines {
		if line.Kind != LineRemoved {
			out = append(out, line.Text)
		}
	}
	return out
}

// OldNoNewline reports whether the last original-side line lacks a trailing newline.
func (h Hunk) OldNoNewline() bool {
	return lastNoNewline(h.Lines, LineAdded)
}

// NewNoNewline reports whether the last patched-side line lacks a trailing newline.
func (h Hunk) NewNoNewline() bool {
	return lastNoNewline(h.Lines, LineRemoved)
}

// Added returns the number of added lines.
func (h Hunk) Added() int {
	return h.NewLines - h.contextLines()
}

// Removed returns the number of removed lines.
func (h Hunk) Removed() int {
	return h.OldLines - h.contextLines()
}

func (h Hunk) contextLines() int {
	count := 0
	for _, line := range h.Lines {
		if line.Kind == LineContext {
			count++
		}
	}
	return count
}

// oldIndex is the zero based position in the original file where the hunk's window
// begins. A hunk without original lines inserts after line OldStart.
func (h Hunk) oldIndex() int {
	if h.OldLines == 0 {
		return h.OldStart
	}
	return h.OldStart - 1
}

func lastNoNewline(lines []HunkLine, skip LineKind) bool {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Kind == skip {
			continue
		}
		return lines[i].NoNewline
	}
	return false
}

// PatchedFile is the part of a patch describing changes to one file.
type PatchedFile struct {
	// SourcePath and TargetPath are the paths written after "---" and "+++",
	// including any "a/" or "b/" prefix.
	SourcePath string
	TargetPath string
	// LocalSourcePath and LocalTargetPath are the working tree relative paths.
	LocalSourcePath string
	LocalTargetPath string
	// SourceTimestamp and TargetTimestamp hold the optional tab separated suffix of
	// the header lines produced by diff -u.
	SourceTimestamp string
	TargetTimestamp string
	// Header holds the raw lines preceding "---", starting with "diff --git" if present.
	Header   []string
	IsBinary bool
	Hunks    []Hunk
}

// NewPatchedFile builds a PatchedFile and derives its local paths.
func NewPatchedFile(sourcePath, targetPath string, hunks []Hunk) *PatchedFile {
	return &PatchedFile{
		SourcePath:      sourcePath,
		TargetPath:      targetPath,
		LocalSourcePath: LocalSourcePath(sourcePath),
		LocalTargetPath: LocalTargetPath(targetPath),
		Hunks:           hunks,
	}
}

// IsNew reports whether the patch creates the file.
func (f *PatchedFile) IsNew() bool {
	return f.SourcePath == DevNull
}

// IsDelete reports whether the patch removes the file.
func (f *PatchedFile) IsDelete() bool {
	return f.TargetPath == DevNull
}

// IsRename reports whether the file is moved to a different path.
func (f *PatchedFile) IsRename() bool {
	return !f.IsNew() && !f.IsDelete() && f.LocalSourcePath != f.LocalTargetPath
}

// Path returns the working tree path the patch reads from, falling back to the
// target for newly created files.
func (f *PatchedFile) Path() string {
	if f.IsNew() {
		return f.LocalTargetPath
	}
	return f.LocalSourcePath
}

// Stat returns the number of added and removed lines across all hunks.
func (f *PatchedFile) Stat() (added, removed int) {
	for _, hunk := range f.Hunks {
		added += hunk.Added()
		removed += hunk.Removed()
	}
	return added, removed
}

// PatchSet is the parsed form of one diff text.
type PatchSet struct {
	Files []*PatchedFile
}
