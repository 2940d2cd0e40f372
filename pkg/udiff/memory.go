package udiff

import (
	"context"
	"io/fs"
	"maps"
)

// ApplyToMemory applies a patch set to an in-memory document store keyed by slash
// separated relative path. The provided map is copied before mutation and the
// updated snapshot is returned.
func ApplyToMemory(ctx context.Context, set *PatchSet, files map[string]string, opts Options) (map[string]string, []Result, error) {
	ws := &memoryWorkspace{files: maps.Clone(files)}
	if ws.files == nil {
		ws.files = make(map[string]string)
	}
	results, err := apply(ctx, set, ws, applyOptions{Options: opts, followRenames: true})
	if err != nil {
		return nil, nil, err
	}
	return ws.files, results, nil
}

// ApplyMemoryPatch parses a raw patch payload and applies it to an in-memory map of files.
func ApplyMemoryPatch(ctx context.Context, patchBody string, files map[string]string, opts Options) (map[string]string, []Result, error) {
	set, err := Parse(patchBody)
	if err != nil {
		return nil, nil, err
	}
	return ApplyToMemory(ctx, set, files, opts)
}

type memoryWorkspace struct {
	files map[string]string
}

func (ws *memoryWorkspace) resolve(path string) (string, error) {
	return cleanKey(path)
}

func (ws *memoryWorkspace) read(key string) (string, fs.FileMode, bool, error) {
	content, ok := ws.files[key]
	return content, 0, ok, nil
}

func (ws *memoryWorkspace) write(key, content string, _ fs.FileMode) error {
	ws.files[key] = content
	return nil
}

func (ws *memoryWorkspace) remove(key string) error {
	delete(ws.files, key)
	return nil
}
