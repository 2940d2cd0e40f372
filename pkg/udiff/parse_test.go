package udiff

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooPatch = `--- a/foo.txt
+++ b/foo.txt
@@ -1,2 +1,2 @@
 line1
-line2
+line2-modified
`

func TestParseSingleFile(t *testing.T) {
	t.Parallel()

	set, err := Parse(fooPatch)
	require.NoError(t, err)
	require.Len(t, set.Files, 1)

	file := set.Files[0]
	assert.Equal(t, "a/foo.txt", file.SourcePath)
	assert.Equal(t, "b/foo.txt", file.TargetPath)
	assert.Equal(t, "foo.txt", file.LocalSourcePath)
	assert.Equal(t, "foo.txt", file.LocalTargetPath)
	assert.False(t, file.IsNew())
	assert.False(t, file.IsDelete())
	assert.False(t, file.IsRename())

	require.Len(t, file.Hunks, 1)
	assert.Equal(t, Hunk{
		OldStart: 1, OldLines: 2, NewStart: 1, NewLines: 2,
		Lines: []HunkLine{
			{Kind: LineContext, Text: "line1"},
			{Kind: LineRemoved, Text: "line2"},
			{Kind: LineAdded, Text: "line2-modified"},
		},
	}, file.Hunks[0])
	assert.Equal(t, []string{"line1", "line2"}, file.Hunks[0].Before())
	assert.Equal(t, []string{"line1", "line2-modified"}, file.Hunks[0].After())
}

func TestParseGitPatchWithPreamble(t *testing.T) {
	t.Parallel()

	text := `From 1234 Mon Sep 17 00:00:00 2001
Subject: [PATCH] update files

---
 src/a.go | 2 +-
 1 file changed

diff --git a/src/a.go b/src/a.go
index 83db48f..bf269f4 100644
--- a/src/a.go	2024-01-01 10:00:00.000000000 +0000
+++ b/src/a.go	2024-01-02 10:00:00.000000000 +0000
@@ -10,3 +10,3 @@ func main() {
 	a := 1
-	b := 2
+	b := 3
 	c := a + b
` + "-- \n2.43.0\n"
	set, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, set.Files, 1)

	file := set.Files[0]
	assert.Equal(t, []string{"diff --git a/src/a.go b/src/a.go", "index 83db48f..bf269f4 100644"}, file.Header)
	assert.Equal(t, "a/src/a.go", file.SourcePath)
	assert.Equal(t, "2024-01-01 10:00:00.000000000 +0000", file.SourceTimestamp)
	assert.Equal(t, "2024-01-02 10:00:00.000000000 +0000", file.TargetTimestamp)
	require.Len(t, file.Hunks, 1)
	assert.Equal(t, "func main() {", file.Hunks[0].Section)
	assert.Equal(t, "src/a.go", file.LocalSourcePath)
}

func TestParseSvnStyleHeaders(t *testing.T) {
	t.Parallel()

	text := "Index: foo.txt\n" +
		"===================================================================\n" +
		"--- foo.txt\n" +
		"+++ foo.txt\n" +
		"@@ -1 +1 @@\n" +
		"-a\n" +
		"+b\n"
	set, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, set.Files, 1)
	assert.Equal(t, "foo.txt", set.Files[0].LocalSourcePath)
	assert.Equal(t, 1, set.Files[0].Hunks[0].OldLines, "omitted length defaults to 1")
	assert.Equal(t, 1, set.Files[0].Hunks[0].NewLines)
}

func TestParseMultipleFilesKeepsOrder(t *testing.T) {
	t.Parallel()

	text := `diff --git a/z.txt b/z.txt
--- a/z.txt
+++ b/z.txt
@@ -1 +1 @@
-z
+Z
diff --git a/a.txt b/a.txt
new file mode 100644
--- /dev/null
+++ b/a.txt
@@ -0,0 +1,2 @@
+one
+two
diff --git a/m.txt b/m.txt
deleted file mode 100644
--- a/m.txt
+++ /dev/null
@@ -1 +0,0 @@
-gone
`
	set, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, set.Files, 3)

	assert.Equal(t, "z.txt", set.Files[0].Path())
	assert.True(t, set.Files[1].IsNew())
	assert.Equal(t, "a.txt", set.Files[1].Path())
	assert.True(t, set.Files[2].IsDelete())
	assert.Equal(t, "m.txt", set.Files[2].Path())

	added, removed := set.Files[1].Stat()
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, removed)
}

func TestParseHeaderOnlySections(t *testing.T) {
	t.Parallel()

	text := `diff --git a/old name.txt b/new name.txt
similarity index 100%
rename from old name.txt
rename to new name.txt
diff --git a/run.sh b/run.sh
old mode 100644
new mode 100755
diff --git a/logo.png b/logo.png
index 1234567..89abcde 100644
Binary files a/logo.png and b/logo.png differ
diff --git a/empty.txt b/empty.txt
new file mode 100644
index 0000000..e69de29
`
	set, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, set.Files, 4)

	rename := set.Files[0]
	assert.Equal(t, "a/old name.txt", rename.SourcePath)
	assert.Equal(t, "b/new name.txt", rename.TargetPath)
	assert.True(t, rename.IsRename())
	assert.Empty(t, rename.Hunks)

	mode := set.Files[1]
	assert.Equal(t, "run.sh", mode.LocalSourcePath)
	assert.Equal(t, "run.sh", mode.LocalTargetPath)
	assert.False(t, mode.IsRename())

	binary := set.Files[2]
	assert.True(t, binary.IsBinary)
	assert.Equal(t, "logo.png", binary.Path())

	empty := set.Files[3]
	assert.True(t, empty.IsNew())
	assert.Equal(t, "empty.txt", empty.Path())
}

func TestParseEmptyLineCountsAsContext(t *testing.T) {
	t.Parallel()

	text := "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n\n-b\n+c\n"
	set, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, []HunkLine{
		{Kind: LineContext, Text: "a"},
		{Kind: LineContext, Text: ""},
		{Kind: LineRemoved, Text: "b"},
		{Kind: LineAdded, Text: "c"},
	}, set.Files[0].Hunks[0].Lines)
}

func TestParseNoNewlineMarkers(t *testing.T) {
	t.Parallel()

	text := "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n a\n-b\n\\ No newline at end of file\n+c\n\\ No newline at end of file\n"
	set, err := Parse(text)
	require.NoError(t, err)

	hunk := set.Files[0].Hunks[0]
	assert.True(t, hunk.Lines[1].NoNewline)
	assert.True(t, hunk.Lines[2].NoNewline)
	assert.True(t, hunk.OldNoNewline())
	assert.True(t, hunk.NewNoNewline())
}

func TestParseCRLFDiffText(t *testing.T) {
	t.Parallel()

	text := "--- a/x\r\n+++ b/x\r\n@@ -1 +1 @@\r\n-a\r\n+b\r\n"
	set, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "b/x", set.Files[0].TargetPath)
	assert.Equal(t, []string{"a"}, set.Files[0].Hunks[0].Before())
}

func TestParseToleratesBlankLinesBetweenHunks(t *testing.T) {
	t.Parallel()

	text := "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n\n@@ -5 +5 @@\n-e\n+f\n\n\n"
	set, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, set.Files[0].Hunks, 2)
	assert.Equal(t, 5, set.Files[0].Hunks[1].OldStart)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		text     string
		sentinel error
		line     int
	}{
		{name: "empty input", text: "", sentinel: ErrEmptyPatch},
		{name: "prose only", text: "hello\nworld\n", sentinel: ErrEmptyPatch},
		{name: "plus before minus", text: "+++ b/x\n--- a/x\n", sentinel: ErrMalformedHeader, line: 1},
		{name: "minus without plus", text: "--- a/x\n@@ -1 +1 @@\n-a\n+b\n", sentinel: ErrMalformedHeader, line: 2},
		{name: "hunk before header", text: "@@ -1 +1 @@\n-a\n+b\n", sentinel: ErrMalformedHeader, line: 1},
		{name: "git header then plus", text: "diff --git a/x b/x\n+++ b/x\n", sentinel: ErrMalformedHeader, line: 2},
		{name: "bad hunk header", text: "--- a/x\n+++ b/x\n@@ -1,x +1 @@\n", sentinel: ErrMalformedHunk, line: 3},
		{name: "zero start with lines", text: "--- a/x\n+++ b/x\n@@ -0,2 +1,2 @@\n a\n b\n", sentinel: ErrMalformedHunk, line: 3},
		{name: "truncated at end", text: "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n b\n", sentinel: ErrMalformedHunk, line: 6},
		{name: "truncated by prose", text: "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\nstray\n", sentinel: ErrMalformedHunk, line: 5},
		{name: "too many removed", text: "--- a/x\n+++ b/x\n@@ -1 +1,2 @@\n-a\n-b\n+c\n", sentinel: ErrMalformedHunk, line: 5},
		{name: "overflow after hunk", text: "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n c\n", sentinel: ErrMalformedHunk, line: 6},
		{name: "marker first", text: "--- a/x\n+++ b/x\n@@ -1 +1 @@\n\\ No newline at end of file\n", sentinel: ErrMalformedHunk, line: 4},
		{name: "overlapping hunks", text: "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n@@ -2 +2 @@\n-b\n+d\n", sentinel: ErrMalformedHunk, line: 7},
		{name: "hunks out of order", text: "--- a/x\n+++ b/x\n@@ -5 +5 @@\n-e\n+f\n@@ -1 +1 @@\n-a\n+b\n", sentinel: ErrMalformedHunk, line: 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			set, err := Parse(tc.text)
			require.Error(t, err)
			assert.Nil(t, set, "no partial patch set on error")
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.line, pe.Line)
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	t.Parallel()

	texts := []string{fooPatch, "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n"}
	for _, text := range texts {
		first, err := Parse(text)
		require.NoError(t, err)
		second, err := Parse(text)
		require.NoError(t, err)
		assert.True(t, reflect.DeepEqual(first, second))
	}
}

func TestParsedHunksSatisfyDeclaredCounts(t *testing.T) {
	t.Parallel()

	text := `--- a/x
+++ b/x
@@ -1,4 +1,5 @@
 a
-b
+B
+B2
 c

@@ -10,0 +12,2 @@
+new
+lines
@@ -20,3 +23 @@
-x
-y
-z
+xyz
`
	set, err := Parse(text)
	require.NoError(t, err)
	for _, hunk := range set.Files[0].Hunks {
		context, removed, added := 0, 0, 0
		for _, line := range hunk.Lines {
			switch line.Kind {
			case LineContext:
				context++
			case LineRemoved:
				removed++
			case LineAdded:
				added++
			}
		}
		assert.Equal(t, hunk.OldLines, context+removed, hunk.Header())
		assert.Equal(t, hunk.NewLines, context+added, hunk.Header())
	}
}

func TestPatchSetStringReparses(t *testing.T) {
	t.Parallel()

	text := `diff --git a/src/a.go b/src/a.go
index 83db48f..bf269f4 100644
--- a/src/a.go	2024-01-01
+++ b/src/a.go	2024-01-02
@@ -1,3 +1,3 @@ package main
 a
-b
+c

@@ -10,0 +11 @@
+tail
\ No newline at end of file
diff --git a/old.txt b/new.txt
similarity index 100%
rename from old.txt
rename to new.txt
`
	set, err := Parse(text)
	require.NoError(t, err)

	again, err := Parse(set.String())
	require.NoError(t, err)
	assert.Equal(t, set, again)
}

func TestParseGitHeaderPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		old, new string
	}{
		{in: "a/x.go b/x.go", old: "a/x.go", new: "b/x.go"},
		{in: "a/with space.go b/with space.go", old: "a/with space.go", new: "b/with space.go"},
		{in: "a/old b/new", old: "a/old", new: "b/new"},
		{in: "a/dir b/x b/dir b/x", old: "a/dir b/x", new: "b/dir b/x"},
		{in: "x y", old: "x", new: "y"},
	}
	for _, tc := range cases {
		old, new := parseGitHeaderPaths(tc.in)
		assert.Equal(t, tc.old, old, tc.in)
		assert.Equal(t, tc.new, new, tc.in)
	}
}
