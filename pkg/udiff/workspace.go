package udiff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result status values.
const (
	ResultAdded     = "A"
	ResultModified  = "M"
	ResultDeleted   = "D"
	ResultRenamed   = "R"
	ResultUnchanged = "-"
)

// Result describes what happened to one file section of a patch.
type Result struct {
	Status string       `json:"status"`
	Path   string       `json:"path"`
	Hunks  []HunkStatus `json:"hunks,omitempty"`
}

// workspace is the storage a patch set is applied to. Keys are cleaned, slash
// separated paths relative to the workspace root.
type workspace interface {
	resolve(path string) (string, error)
	read(key string) (content string, mode fs.FileMode, exists bool, err error)
	write(key, content string, mode fs.FileMode) error
	remove(key string) error
}

// plan is the computed outcome of one file section, committed after every section
// has been applied in memory.
type plan struct {
	result  Result
	content string
	mode    fs.FileMode
	// write is the key receiving content; empty when nothing is written.
	write string
	// remove is the key deleted after the write; empty when nothing is removed.
	remove string
	err    error
}

// snapshot is the content a file section sees: the working tree version or the
// output of an earlier section for the same path.
type snapshot struct {
	content string
	mode    fs.FileMode
	exists  bool
}

type applyOptions struct {
	Options
	dryRun        bool
	followRenames bool
}

// apply computes every file section concurrently, one goroutine per distinct path,
// and then commits the plans sequentially in patch order. Commit stops at the first
// failed section; sections before it stay committed.
func apply(ctx context.Context, set *PatchSet, ws workspace, opts applyOptions) ([]Result, error) {
	if ws == nil {
		return nil, errors.New("nil workspace")
	}
	if set == nil || len(set.Files) == 0 {
		return []Result{}, nil
	}

	plans := make([]plan, len(set.Files))
	var order []string
	groups := make(map[string][]int)
	for i, file := range set.Files {
		key, err := ws.resolve(file.Path())
		if err != nil {
			plans[i].err = err
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			return computeGroup(gctx, set, ws, key, indexes, plans, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(plans))
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		p := &plans[i]
		if p.err != nil {
			return results, p.err
		}
		if !opts.dryRun {
			if err := commitPlan(ws, p); err != nil {
				return results, err
			}
		}
		results = append(results, p.result)
	}
	return results, nil
}

// computeGroup applies the sections for one path in order, feeding each section the
// output of the previous one. Only context cancellation is returned; apply failures
// are stored on the plan so earlier files can still be committed.
func computeGroup(ctx context.Context, set *PatchSet, ws workspace, key string, indexes []int, plans []plan, opts applyOptions) error {
	var current *snapshot
	for n, i := range indexes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if current == nil {
			content, mode, exists, err := ws.read(key)
			if err != nil {
				plans[i].err = err
				markSkipped(plans, indexes[n+1:], key)
				return nil
			}
			current = &snapshot{content: content, mode: mode, exists: exists}
		}

		p, next, err := planFile(set.Files[i], key, ws, *current, opts)
		if err != nil {
			plans[i].err = err
			markSkipped(plans, indexes[n+1:], key)
			return nil
		}
		plans[i] = p
		current = &next
	}
	return nil
}

func markSkipped(plans []plan, indexes []int, key string) {
	for _, i := range indexes {
		plans[i].err = fmt.Errorf("skipped %s after an earlier failure", key)
	}
}

func planFile(file *PatchedFile, key string, ws workspace, current snapshot, opts applyOptions) (plan, snapshot, error) {
	switch {
	case file.IsNew() && current.exists:
		return plan{}, current, fmt.Errorf("cannot create %s: file already exists", key)
	case !file.IsNew() && !current.exists:
		return plan{}, current, fmt.Errorf("failed to read %s: %w", key, fs.ErrNotExist)
	}

	app, err := file.ApplyWithOptions(current.content, opts.Options)
	if err != nil {
		return plan{}, current, err
	}

	p := plan{
		content: app.Content,
		mode:    current.mode,
		write:   key,
		result:  Result{Status: ResultModified, Path: key, Hunks: app.Hunks},
	}
	next := snapshot{content: app.Content, mode: current.mode, exists: true}

	switch {
	case file.IsDelete():
		p.write = ""
		p.remove = key
		p.result.Status = ResultDeleted
		next = snapshot{}
	case file.IsNew():
		p.result.Status = ResultAdded
	case file.IsRename() && opts.followRenames:
		target, err := ws.resolve(file.LocalTargetPath)
		if err != nil {
			return plan{}, current, err
		}
		p.write = target
		p.remove = key
		p.result.Status = ResultRenamed
		p.result.Path = target
		next = snapshot{}
	case len(file.Hunks) == 0:
		p.write = ""
		p.result.Status = ResultUnchanged
	}
	return p, next, nil
}

func commitPlan(ws workspace, p *plan) error {
	if p.write != "" {
		if err := ws.write(p.write, p.content, p.mode); err != nil {
			return err
		}
	}
	if p.remove != "" && p.remove != p.write {
		if err := ws.remove(p.remove); err != nil {
			return err
		}
	}
	return nil
}
