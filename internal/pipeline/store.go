package pipeline

import (
	"context"
	"sort"

	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// Store is the authoritative mapping of pipeline identity to state. It is
// owned by the engine loop, implementations need no locking for the loop's sake.
type Store interface {
	// Insert adds p, it fails with exception.ErrPipelineDuplicate when the key exists.
	Insert(ctx context.Context, p Pipeline) error
	// Get returns the pipeline or exception.ErrPipelineNotFound.
	Get(ctx context.Context, key Key) (Pipeline, error)
	// Update replaces an existing pipeline.
	Update(ctx context.Context, p Pipeline) error
	// Delete removes the pipeline or fails with exception.ErrPipelineNotFound.
	Delete(ctx context.Context, key Key) error
	// CountByOwner returns how many pipelines userID owns.
	CountByOwner(ctx context.Context, userID string) (int, error)
	// Pending returns every pipeline whose status is pending.
	Pending(ctx context.Context) ([]Pipeline, error)
}

// MemoryStore keeps pipelines for the process lifetime. It is not safe for
// concurrent use.
type MemoryStore struct {
	owners map[string]map[Key]*Pipeline
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string]map[Key]*Pipeline)}
}

func (s *MemoryStore) Insert(_ context.Context, p Pipeline) error {
	key := p.Key()
	owned := s.owners[key.UserID]
	if owned == nil {
		owned = make(map[Key]*Pipeline)
		s.owners[key.UserID] = owned
	}
	if _, ok := owned[key]; ok {
		return errors.Wrap(exception.ErrPipelineDuplicate, key.String())
	}
	stored := p.Clone()
	owned[key] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Pipeline, error) {
	p, ok := s.owners[key.UserID][key]
	if !ok {
		return Pipeline{}, exception.ErrPipelineNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p Pipeline) error {
	key := p.Key()
	if _, ok := s.owners[key.UserID][key]; !ok {
		return exception.ErrPipelineNotFound
	}
	stored := p.Clone()
	s.owners[key.UserID][key] = &stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	owned := s.owners[key.UserID]
	if _, ok := owned[key]; !ok {
		return exception.ErrPipelineNotFound
	}
	delete(owned, key)
	if len(owned) == 0 {
		delete(s.owners, key.UserID)
	}
	return nil
}

func (s *MemoryStore) CountByOwner(_ context.Context, userID string) (int, error) {
	return len(s.owners[userID]), nil
}

// Pending returns pipelines ordered by creation time so evaluation is stable.
func (s *MemoryStore) Pending(_ context.Context) ([]Pipeline, error) {
	var out []Pipeline
	for _, owned := range s.owners {
		for _, p := range owned {
			if p.Status == StatusPending {
				out = append(out, p.Clone())
			}
		}
	}
	sortByCreation(out)
	return out, nil
}

// Len returns the number of stored pipelines.
func (s *MemoryStore) Len() int {
	n := 0
	for _, owned := range s.owners {
		n += len(owned)
	}
	return n
}

func sortByCreation(ps []Pipeline) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].Key().String() < ps[j].Key().String()
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
