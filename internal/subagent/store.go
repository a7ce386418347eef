package subagent

import (
	"context"
	"os"

	"github.com/stewardhq/steward/internal/store"
)

// maxPersistedRuns bounds disk growth per spec §4.4's "Bounded persistence":
// the last 100 serialized entries bound disk growth.
const maxPersistedRuns = 100

// FileStore implements Store against subagent-registry.json, written via
// tmp-write + rename, grounded on internal/store's atomic primitives.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns every persisted run, oldest first.
func (s *FileStore) Load(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := store.ReadJSON(s.path, &runs); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return runs, nil
}

// Save atomically rewrites the whole run list, truncating to the most
// recent maxPersistedRuns entries.
func (s *FileStore) Save(ctx context.Context, runs []Run) error {
	if len(runs) > maxPersistedRuns {
		runs = runs[len(runs)-maxPersistedRuns:]
	}
	return store.WriteJSONAtomic(s.path, runs)
}
