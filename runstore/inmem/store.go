// Package inmem is an in-memory runstore.Store for tests and single-process use.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/parley-ai/parley"
	"github.com/parley-ai/parley/runstore"
)

// Store keeps records in memory with optimistic version checks.
type Store struct {
	mu      sync.RWMutex
	records map[string]runstore.Record
}

var _ runstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{records: map[string]runstore.Record{}}
}

func (s *Store) Save(_ context.Context, rec runstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[rec.ID]
	switch {
	case !exists:
		if rec.Version != 0 {
			return fmt.Errorf("%w: run %q expected version 0 on create, got %d",
				runstore.ErrVersionConflict, rec.ID, rec.Version)
		}
	case rec.Version != current.Version:
		return fmt.Errorf("%w: run %q expected version %d, got %d",
			runstore.ErrVersionConflict, rec.ID, current.Version, rec.Version)
	}
	next := cloneRecord(rec)
	next.Version = rec.Version + 1
	s.records[rec.ID] = next
	return nil
}

func (s *Store) Load(_ context.Context, id string) (runstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return runstore.Record{}, runstore.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) List(_ context.Context, limit int) ([]runstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]runstore.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRecord(rec runstore.Record) runstore.Record {
	rec.ToolsUsed = append([]string(nil), rec.ToolsUsed...)
	rec.ToolRuns = append([]parley.ToolRun(nil), rec.ToolRuns...)
	rec.Transcript = append([]runstore.TranscriptEntry(nil), rec.Transcript...)
	return rec
}
