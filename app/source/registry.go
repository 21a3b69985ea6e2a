package source

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the live Source instances for every configured account.
// It is the single process-wide owner: all lookups, creations and removals
// go through it.
type Registry struct {
	deps Deps

	mu      sync.RWMutex
	sources map[int64]Source
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		sources: make(map[int64]Source),
	}
}

// Load instantiates a Source for every persisted record. A record whose
// type is unknown fails the whole load; the database is authoritative and
// an unreadable entry means a version mismatch, not a skippable row.
func (r *Registry) Load() error {
	records, err := r.deps.Sources.GetSources("")
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		src, err := New(record, r.deps)
		if err != nil {
			return err
		}
		r.sources[record.ID] = src
	}
	return nil
}

// GetSource returns the live instance for id or ErrSourceNotFound.
func (r *Registry) GetSource(id int64) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSourceNotFound, id)
	}
	return src, nil
}

// GetSources returns all live instances, optionally filtered by type,
// ordered by ID.
func (r *Registry) GetSources(typeFilter string) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		if typeFilter != "" && src.Type() != typeFilter {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// CreateSource persists a new record and brings its instance live. For
// remote sources the constructor performs the version handshake, so an
// unreachable or incompatible server fails creation and the record is
// rolled back.
func (r *Registry) CreateSource(title, sourceType, configData string) (Source, error) {
	record, err := r.deps.Sources.CreateSource(title, sourceType, configData)
	if err != nil {
		return nil, err
	}

	src, err := New(*record, r.deps)
	if err != nil {
		if delErr := r.deps.Sources.DeleteSource(record.ID); delErr != nil {
			return nil, fmt.Errorf("%w (cleanup failed: %v)", err, delErr)
		}
		return nil, err
	}

	r.mu.Lock()
	r.sources[record.ID] = src
	r.mu.Unlock()
	return src, nil
}

// RemoveSource drops the live instance and deletes the record. The schema
// cascades the delete through folders, feeds and posts.
func (r *Registry) RemoveSource(id int64) error {
	r.mu.Lock()
	_, ok := r.sources[id]
	delete(r.sources, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrSourceNotFound, id)
	}
	return r.deps.Sources.DeleteSource(id)
}
