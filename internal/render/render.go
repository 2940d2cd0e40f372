// Package render prints apply results, errors and diffstats for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asynkron/udiff/pkg/udiff"
)

const maxBarWidth = 40

// Printer renders output with a color profile fixed at construction.
type Printer struct {
	statusStyles map[string]lipgloss.Style
	offsetStyle  lipgloss.Style
	errorStyle   lipgloss.Style
	addedStyle   lipgloss.Style
	removedStyle lipgloss.Style
}

// NewPrinter creates a Printer for w. Colors are dropped when color is false or
// when w is not a terminal that supports them.
func NewPrinter(w io.Writer, color bool) *Printer {
	renderer := lipgloss.NewRenderer(w)
	if !color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	style := func(c string) lipgloss.Style {
		return renderer.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &Printer{
		statusStyles: map[string]lipgloss.Style{
			udiff.ResultAdded:     style("10"),
			udiff.ResultModified:  style("11"),
			udiff.ResultDeleted:   style("9"),
			udiff.ResultRenamed:   style("14"),
			udiff.ResultUnchanged: style("244"),
		},
		offsetStyle:  style("244"),
		errorStyle:   style("9").Bold(true),
		addedStyle:   style("10"),
		removedStyle: style("9"),
	}
}

// Results writes one line per file section: its status letter and path, with the
// hunks that applied away from their declared position.
func (p *Printer) Results(w io.Writer, results []udiff.Result) {
	for _, result := range results {
		status := result.Status
		if s, ok := p.statusStyles[status]; ok {
			status = s.Render(status)
		}
		line := fmt.Sprintf("%s %s", status, result.Path)
		if offsets := describeOffsets(result.Hunks); offsets != "" {
			line += " " + p.offsetStyle.Render(offsets)
		}
		fmt.Fprintln(w, line)
	}
}

// Error writes the human readable form of err.
func (p *Printer) Error(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, p.errorStyle.Render("error:")+" "+udiff.FormatError(err))
}

// Stat writes a diffstat for the patch set in the style of "git diff --stat".
func (p *Printer) Stat(w io.Writer, set *udiff.PatchSet) {
	if set == nil {
		return
	}
	type row struct {
		name           string
		added, removed int
		binary         bool
	}
	rows := make([]row, 0, len(set.Files))
	nameWidth, maxChanges := 0, 0
	totalAdded, totalRemoved := 0, 0
	for _, file := range set.Files {
		added, removed := file.Stat()
		r := row{name: statName(file), added: added, removed: removed, binary: file.IsBinary}
		rows = append(rows, r)
		nameWidth = max(nameWidth, len(r.name))
		maxChanges = max(maxChanges, added+removed)
		totalAdded += added
		totalRemoved += removed
	}

	for _, r := range rows {
		if r.binary {
			fmt.Fprintf(w, " %-*s | Bin\n", nameWidth, r.name)
			continue
		}
		plus, minus := scaleBar(r.added, r.removed, maxChanges)
		fmt.Fprintf(w, " %-*s | %d %s%s\n", nameWidth, r.name, r.added+r.removed,
			p.addedStyle.Render(strings.Repeat("+", plus)),
			p.removedStyle.Render(strings.Repeat("-", minus)))
	}
	fmt.Fprintln(w, summary(len(rows), totalAdded, totalRemoved))
}

func statName(file *udiff.PatchedFile) string {
	if file.IsRename() {
		return fmt.Sprintf("%s => %s", file.LocalSourcePath, file.LocalTargetPath)
	}
	if file.IsDelete() {
		return file.LocalSourcePath
	}
	return file.LocalTargetPath
}

// scaleBar shrinks the +/- bar so the largest change fits maxBarWidth, keeping at
// least one mark for any non-zero side.
func scaleBar(added, removed, maxChanges int) (int, int) {
	if maxChanges <= maxBarWidth {
		return added, removed
	}
	scale := func(n int) int {
		if n == 0 {
			return 0
		}
		return max(1, n*maxBarWidth/maxChanges)
	}
	return scale(added), scale(removed)
}

func summary(files, added, removed int) string {
	parts := []string{plural(files, "file changed", "files changed")}
	if added > 0 || removed == 0 {
		parts = append(parts, plural(added, "insertion(+)", "insertions(+)"))
	}
	if removed > 0 {
		parts = append(parts, plural(removed, "deletion(-)", "deletions(-)"))
	}
	return " " + strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

func describeOffsets(hunks []udiff.HunkStatus) string {
	var parts []string
	for _, hunk := range hunks {
		if hunk.Offset == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("hunk %d at line %d (offset %+d)", hunk.Number, hunk.Line, hunk.Offset))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
