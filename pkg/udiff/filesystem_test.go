package udiff

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string, mode fs.FileMode) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func TestApplyFilesystemPatchWritesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/foo.txt", "line1\nline2\n", 0o644)
	writeFile(t, dir, "old.txt", "bye\n", 0o644)

	patch := `--- a/src/foo.txt
+++ b/src/foo.txt
@@ -1,2 +1,2 @@
 line1
-line2
+line2-modified
--- /dev/null
+++ b/nested/dir/new.txt
@@ -0,0 +1 @@
+hello
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
`
	results, err := ApplyFilesystemPatch(context.Background(), patch, FilesystemOptions{WorkingDir: dir})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, ResultModified, results[0].Status)
	assert.Equal(t, ResultAdded, results[1].Status)
	assert.Equal(t, "nested/dir/new.txt", results[1].Path)
	assert.Equal(t, ResultDeleted, results[2].Status)

	assert.Equal(t, "line1\nline2-modified\n", readFile(t, dir, "src/foo.txt"))
	assert.Equal(t, "hello\n", readFile(t, dir, "nested/dir/new.txt"))
	_, err = os.Stat(filepath.Join(dir, "old.txt"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestApplyFilesystemPreservesMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "run.sh", "#!/bin/sh\necho hi\n", 0o755)
	require.NoError(t, os.Chmod(filepath.Join(dir, "run.sh"), 0o755))

	patch := "--- a/run.sh\n+++ b/run.sh\n@@ -2 +2 @@\n-echo hi\n+echo bye\n"
	_, err := ApplyFilesystemPatch(context.Background(), patch, FilesystemOptions{WorkingDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), info.Mode().Perm())
	assert.Equal(t, "#!/bin/sh\necho bye\n", readFile(t, dir, "run.sh"))
}

func TestApplyFilesystemDryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "foo.txt", "line1\nline2\n", 0o644)

	results, err := ApplyFilesystemPatch(context.Background(), fooPatch, FilesystemOptions{WorkingDir: dir, DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResultModified, results[0].Status)
	assert.Equal(t, "line1\nline2\n", readFile(t, dir, "foo.txt"))
}

func TestApplyFilesystemRenames(t *testing.T) {
	t.Parallel()

	patch := `diff --git a/a.txt b/b.txt
similarity index 80%
rename from a.txt
rename to b.txt
--- a/a.txt
+++ b/b.txt
@@ -1 +1 @@
-a
+b
`
	t.Run("written back to source by default", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a.txt", "a\n", 0o644)

		results, err := ApplyFilesystemPatch(context.Background(), patch, FilesystemOptions{WorkingDir: dir})
		require.NoError(t, err)
		assert.Equal(t, ResultModified, results[0].Status)
		assert.Equal(t, "b\n", readFile(t, dir, "a.txt"))
		_, err = os.Stat(filepath.Join(dir, "b.txt"))
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("followed", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a.txt", "a\n", 0o600)

		results, err := ApplyFilesystemPatch(context.Background(), patch, FilesystemOptions{WorkingDir: dir, FollowRenames: true})
		require.NoError(t, err)
		assert.Equal(t, Result{Status: ResultRenamed, Path: "b.txt", Hunks: []HunkStatus{{Number: 1, Status: StatusApplied, Line: 1}}}, results[0])
		assert.Equal(t, "b\n", readFile(t, dir, "b.txt"))
		_, err = os.Stat(filepath.Join(dir, "a.txt"))
		assert.True(t, errors.Is(err, fs.ErrNotExist))

		info, err := os.Stat(filepath.Join(dir, "b.txt"))
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
	})
}

func TestApplyFilesystemStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a\n", 0o644)
	writeFile(t, dir, "b.txt", "b\n", 0o644)
	writeFile(t, dir, "c.txt", "c\n", 0o644)

	patch := `--- a/a.txt
+++ b/a.txt
@@ -1 +1 @@
-a
+A
--- a/b.txt
+++ b/b.txt
@@ -1 +1 @@
-nope
+B
--- a/c.txt
+++ b/c.txt
@@ -1 +1 @@
-c
+C
`
	results, err := ApplyFilesystemPatch(context.Background(), patch, FilesystemOptions{WorkingDir: dir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHunkApplyFailed))
	assert.Equal(t, []Result{{Status: ResultModified, Path: "a.txt", Hunks: []HunkStatus{{Number: 1, Status: StatusApplied, Line: 1}}}}, results)

	assert.Equal(t, "A\n", readFile(t, dir, "a.txt"), "files before the failure stay written")
	assert.Equal(t, "b\n", readFile(t, dir, "b.txt"))
	assert.Equal(t, "c\n", readFile(t, dir, "c.txt"), "files after the failure are not written")
}

func TestApplyFilesystemErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder"), 0o755))

	cases := []struct {
		name  string
		patch string
		want  string
		is    error
	}{
		{name: "missing", patch: "--- a/none\n+++ b/none\n@@ -1 +1 @@\n-a\n+b\n", is: fs.ErrNotExist},
		{name: "directory", patch: "--- a/folder\n+++ b/folder\n@@ -1 +1 @@\n-a\n+b\n", want: "cannot patch directory folder"},
		{name: "absolute", patch: "--- /etc/passwd\n+++ /etc/passwd\n@@ -1 +1 @@\n-a\n+b\n", want: "escapes the working directory"},
		{name: "parent", patch: "--- a/../x\n+++ b/../x\n@@ -1 +1 @@\n-a\n+b\n", want: "escapes the working directory"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ApplyFilesystemPatch(context.Background(), tc.patch, FilesystemOptions{WorkingDir: dir})
			require.Error(t, err)
			if tc.is != nil {
				assert.True(t, errors.Is(err, tc.is), "got %v", err)
			}
			if tc.want != "" {
				assert.ErrorContains(t, err, tc.want)
			}
		})
	}
}

func TestApplyFilesystemCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "foo.txt", "line1\nline2\n", 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ApplyFilesystemPatch(ctx, fooPatch, FilesystemOptions{WorkingDir: dir})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "line1\nline2\n", readFile(t, dir, "foo.txt"))
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a.txt", want: "a.txt"},
		{in: " dir/./b.txt ", want: "dir/b.txt"},
		{in: "dir/../c.txt", want: "c.txt"},
		{in: "", wantErr: true},
		{in: DevNull, wantErr: true},
		{in: "../x", wantErr: true},
		{in: "/abs", wantErr: true},
	}
	for _, tc := range cases {
		got, err := cleanKey(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
