package udiff

import (
	"fmt"
	"strings"
)

const noNewlineMarker = `\ No newline at end of file`

// Header renders the "@@ -os,ol +ns,nl @@" line of the hunk.
func (h Hunk) Header() string {
	header := fmt.Sprintf("@@ -%s +%s @@", formatRange(h.OldStart, h.OldLines), formatRange(h.NewStart, h.NewLines))
	if h.Section != "" {
		header += " " + h.Section
	}
	return header
}

// RawLines renders the hunk back into diff text lines, header first.
func (h Hunk) RawLines() []string {
	lines := make([]string, 0, len(h.Lines)+2)
	lines = append(lines, h.Header())
	for _, line := range h.Lines {
		lines = append(lines, line.Kind.String()+line.Text)
		if line.NoNewline {
			lines = append(lines, noNewlineMarker)
		}
	}
	return lines
}

// String renders the file section as unified diff text.
func (f *PatchedFile) String() string {
	var builder strings.Builder
	for _, line := range f.Header {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	if len(f.Hunks) == 0 && len(f.Header) > 0 {
		return builder.String()
	}
	builder.WriteString("--- " + joinTimestamp(f.SourcePath, f.SourceTimestamp) + "\n")
	builder.WriteString("+++ " + joinTimestamp(f.TargetPath, f.TargetTimestamp) + "\n")
	for _, hunk := range f.Hunks {
		for _, line := range hunk.RawLines() {
			builder.WriteString(line)
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

// String renders the whole patch set as unified diff text.
func (p *PatchSet) String() string {
	var builder strings.Builder
	for _, file := range p.Files {
		builder.WriteString(file.String())
	}
	return builder.String()
}

func formatRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

func joinTimestamp(path, timestamp string) string {
	if timestamp == "" {
		return path
	}
	return path + "\t" + timestamp
}
