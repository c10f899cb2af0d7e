package tools

import (
	"context"
	"slices"
	"sync"

	"github.com/martinemde/autodoc/agentloop"
)

// FileIndex records which project files each run read or wrote. Attach it
// to a sandbox with agentloop.WithPostExecuteHook(index.Hook).
type FileIndex struct {
	env *LocalEnvironment

	mu      sync.Mutex
	read    map[string][]string
	written map[string][]string
}

// NewFileIndex returns an empty index resolving paths against env.
func NewFileIndex(env *LocalEnvironment) *FileIndex {
	return &FileIndex{
		env:     env,
		read:    make(map[string][]string),
		written: make(map[string][]string),
	}
}

// Hook is a PostExecuteHook. Calls outside a run are filed under the empty
// run ID.
func (x *FileIndex) Hook(ctx context.Context, action *agentloop.Action, rec agentloop.ExecutionRecord) error {
	name, _ := rec.ArgsUsed["name"].(string)
	if name == "" {
		return nil
	}
	var runID string
	if ac, ok := agentloop.ActionContextFrom(ctx); ok {
		runID = ac.RunID
	}
	path := x.env.Rel(x.env.Resolve(name))

	x.mu.Lock()
	defer x.mu.Unlock()
	switch {
	case action.Name == "write_project_file":
		x.written[runID] = appendUnique(x.written[runID], path)
	case slices.Contains(action.Tags, TagRead), slices.Contains(action.Tags, TagAnalyze):
		x.read[runID] = appendUnique(x.read[runID], path)
	}
	return nil
}

// Read returns the files read during runID, in first-access order.
func (x *FileIndex) Read(runID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.read[runID])
}

// Written returns the files written during runID, in first-access order.
func (x *FileIndex) Written(runID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.written[runID])
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
