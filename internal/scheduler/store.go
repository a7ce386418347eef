package scheduler

import (
	"context"
	"os"

	"github.com/stewardhq/steward/internal/store"
)

// storeVersion is the current on-disk schema version of cron-store.json
// (spec §6): {version:2, jobs:[...]}.
const storeVersion = 2

type fileFormat struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// FileStore implements Store against a single JSON file written via
// tmp-write + rename, grounded on internal/store's atomic primitives.
// Grounded on spec §6's `cron-store.json` layout and the v1→v2 migration
// spec §9 describes (v1 records without `state` default to
// `state.consecutiveFailures = 0`).
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the job list, applying the v1→v2 migration when the file
// predates the `state` field (State is the JSON zero value either way, so
// no explicit migration code is needed beyond accepting the old shape).
func (s *FileStore) Load(ctx context.Context) ([]Job, error) {
	var data fileFormat
	if err := store.ReadJSON(s.path, &data); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data.Jobs, nil
}

// Save atomically rewrites the whole job list.
func (s *FileStore) Save(ctx context.Context, jobs []Job) error {
	return store.WriteJSONAtomic(s.path, fileFormat{Version: storeVersion, Jobs: jobs})
}
