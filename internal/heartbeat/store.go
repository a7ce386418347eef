package heartbeat

import (
	"context"
	"os"

	"github.com/stewardhq/steward/internal/store"
)

// FileStore implements Store against heartbeat-state.json, written via
// tmp-write + rename, grounded on internal/store's atomic primitives.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the persisted state, or the zero State if no file exists
// yet.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	var st State
	if err := store.ReadJSON(s.path, &st); err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, err
	}
	return st, nil
}

// Save atomically rewrites the heartbeat state.
func (s *FileStore) Save(ctx context.Context, st State) error {
	return store.WriteJSONAtomic(s.path, st)
}
