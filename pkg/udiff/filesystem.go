package udiff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemOptions configure ApplyFilesystem.
type FilesystemOptions struct {
	Options
	// WorkingDir is the root patch paths are resolved against. It defaults to the
	// process working directory.
	WorkingDir string
	// DryRun applies every hunk in memory without touching the filesystem.
	DryRun bool
	// FollowRenames writes renamed files to their target path and removes the source.
	// Without it the patched content is written back to the source path.
	FollowRenames bool
}

// ApplyFilesystem applies a parsed patch set to files below opts.WorkingDir. The
// results of the files committed before a failure are returned with the error.
func ApplyFilesystem(ctx context.Context, set *PatchSet, opts FilesystemOptions) ([]Result, error) {
	ws, err := newFilesystemWorkspace(opts)
	if err != nil {
		return nil, err
	}
	return apply(ctx, set, ws, applyOptions{
		Options:       opts.Options,
		dryRun:        opts.DryRun,
		followRenames: opts.FollowRenames,
	})
}

// ApplyFilesystemPatch parses a raw patch payload and applies it to the filesystem.
func ApplyFilesystemPatch(ctx context.Context, patchBody string, opts FilesystemOptions) ([]Result, error) {
	set, err := Parse(patchBody)
	if err != nil {
		return nil, err
	}
	return ApplyFilesystem(ctx, set, opts)
}

type filesystemWorkspace struct {
	workingDir string
}

func newFilesystemWorkspace(opts FilesystemOptions) (*filesystemWorkspace, error) {
	workingDir := strings.TrimSpace(opts.WorkingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workingDir = wd
	}
	if abs, err := filepath.Abs(workingDir); err == nil {
		workingDir = abs
	}
	return &filesystemWorkspace{workingDir: workingDir}, nil
}

func (ws *filesystemWorkspace) resolve(path string) (string, error) {
	return cleanKey(path)
}

func (ws *filesystemWorkspace) abs(key string) string {
	return filepath.Join(ws.workingDir, filepath.FromSlash(key))
}

func (ws *filesystemWorkspace) read(key string) (string, fs.FileMode, bool, error) {
	info, err := os.Stat(ws.abs(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", 0, false, nil
	case err != nil:
		return "", 0, false, fmt.Errorf("failed to stat %s: %w", key, err)
	case info.IsDir():
		return "", 0, false, fmt.Errorf("cannot patch directory %s", key)
	}
	content, err := os.ReadFile(ws.abs(key))
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(content), info.Mode(), true, nil
}

func (ws *filesystemWorkspace) write(key, content string, mode fs.FileMode) error {
	path := ws.abs(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	perm := mode & fs.ModePerm
	if perm == 0 {
		perm = 0o644
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if mode == 0 {
		return nil
	}

	// WriteFile keeps the mode of an existing file and applies the umask to new
	// ones, so renamed targets and special bits need an explicit chmod.
	desired := mode & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s after write: %w", key, err)
	}
	if info.Mode()&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky) != desired {
		if err := os.Chmod(path, desired); err != nil {
			return fmt.Errorf("failed to restore permissions for %s: %w", key, err)
		}
	}
	return nil
}

func (ws *filesystemWorkspace) remove(key string) error {
	if err := os.Remove(ws.abs(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file %s: %w", key, err)
	}
	return nil
}

// cleanKey turns a patch path into a workspace key, rejecting paths that are empty,
// absolute, or that climb out of the workspace root.
func cleanKey(path string) (string, error) {
	rel := strings.TrimSpace(path)
	if rel == "" || rel == DevNull {
		return "", fmt.Errorf("invalid patch path %q", path)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("patch path %q escapes the working directory", path)
	}
	return filepath.ToSlash(cleaned), nil
}
