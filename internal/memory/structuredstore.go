package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stewardhq/steward/internal/store"
)

// Fact is one entry in the structured MemoryStore: an ordered sequence of
// {id, content, tags[], createdAt, updatedAt} persisted atomically, mutated
// only by the memory tool (spec §3).
type Fact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type factFile struct {
	Facts []Fact `json:"facts"`
}

// FactStore is the structured MemoryStore: a single JSON file
// (memory/memory.json) holding the ordered fact sequence, written with the
// same tmp-write-then-rename discipline as every other durable record in
// this codebase.
type FactStore struct {
	path string
	mu   sync.Mutex
}

// NewFactStore creates a FactStore backed by path.
func NewFactStore(path string) *FactStore {
	return &FactStore{path: path}
}

func (s *FactStore) load() ([]Fact, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: read fact store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var ff factFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("memory: parse fact store: %w", err)
	}
	return ff.Facts, nil
}

func (s *FactStore) save(facts []Fact) error {
	return store.WriteJSONAtomic(s.path, factFile{Facts: facts})
}

// Add appends a new fact and returns it.
func (s *FactStore) Add(ctx context.Context, content string, tags []string) (Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	facts, err := s.load()
	if err != nil {
		return Fact{}, err
	}
	now := time.Now()
	f := Fact{ID: uuid.NewString(), Content: content, Tags: tags, CreatedAt: now, UpdatedAt: now}
	facts = append(facts, f)
	if err := s.save(facts); err != nil {
		return Fact{}, err
	}
	return f, nil
}

// List returns every fact, oldest first.
func (s *FactStore) List(ctx context.Context) ([]Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update replaces the content/tags of the fact with the given id.
func (s *FactStore) Update(ctx context.Context, id, content string, tags []string) (Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	facts, err := s.load()
	if err != nil {
		return Fact{}, err
	}
	for i := range facts {
		if facts[i].ID == id {
			facts[i].Content = content
			facts[i].Tags = tags
			facts[i].UpdatedAt = time.Now()
			if err := s.save(facts); err != nil {
				return Fact{}, err
			}
			return facts[i], nil
		}
	}
	return Fact{}, fmt.Errorf("memory: fact %q not found", id)
}

// Remove deletes the fact with the given id.
func (s *FactStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	facts, err := s.load()
	if err != nil {
		return err
	}
	out := facts[:0]
	found := false
	for _, f := range facts {
		if f.ID == id {
			found = true
			continue
		}
		out = append(out, f)
	}
	if !found {
		return fmt.Errorf("memory: fact %q not found", id)
	}
	return s.save(out)
}

// Search returns every fact whose content or tags contain query
// (case-insensitive), most recently updated first.
func (s *FactStore) Search(ctx context.Context, query string) ([]Fact, error) {
	s.mu.Lock()
	facts, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return facts, nil
	}

	lower := strings.ToLower(query)
	var hits []Fact
	for _, f := range facts {
		if strings.Contains(strings.ToLower(f.Content), lower) {
			hits = append(hits, f)
			continue
		}
		for _, t := range f.Tags {
			if strings.Contains(strings.ToLower(t), lower) {
				hits = append(hits, f)
				break
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].UpdatedAt.After(hits[j].UpdatedAt) })
	return hits, nil
}
