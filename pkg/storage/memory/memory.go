// Package memory provides an in-memory transport.TranscriptStore for tests
// and single-instance deployments. Transcripts are lost on restart. A
// positive size bound turns the store into an LRU cache.
package memory

import (
	"cmp"
	"container/list"
	"context"
	"slices"
	"sync"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/storage"
	"github.com/rhuss/chatwire/pkg/transport"
)

type entry struct {
	transcript *api.Transcript
	tenantID   string
	elem       *list.Element
}

// Store is an in-memory TranscriptStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front is most recently used
	maxSize int        // 0 means unbounded
}

var _ transport.TranscriptStore = (*Store)(nil)

// New creates a store holding at most maxSize transcripts. When full, the
// least recently saved or read transcript is evicted. A maxSize of 0
// disables eviction.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (s *Store) SaveTranscript(ctx context.Context, t *api.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[t.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[t.ID] = &entry{
		transcript: t,
		tenantID:   storage.GetTenant(ctx),
		elem:       s.lru.PushFront(t.ID),
	}
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, id string) (*api.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return nil, storage.ErrNotFound
	}
	s.lru.MoveToFront(e.elem)
	return e.transcript, nil
}

func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return storage.ErrNotFound
	}
	s.lru.Remove(e.elem)
	delete(s.entries, id)
	return nil
}

// ListTranscripts returns transcripts ordered by creation time (newest
// first unless opts.Order is "asc"), filtered by tenant, provider and
// model, paginated by ID cursors.
func (s *Store) ListTranscripts(ctx context.Context, opts transport.ListOptions) (*transport.TranscriptList, error) {
	s.mu.Lock()
	var matches []*api.Transcript
	for _, e := range s.entries {
		if !storage.Visible(ctx, e.tenantID) {
			continue
		}
		t := e.transcript
		if opts.Provider != "" && t.Provider != opts.Provider {
			continue
		}
		if opts.Model != "" && t.Model != opts.Model {
			continue
		}
		matches = append(matches, t)
	}
	s.mu.Unlock()

	slices.SortFunc(matches, func(a, b *api.Transcript) int {
		c := cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
		if opts.Order == "asc" {
			return c
		}
		return -c
	})

	matches = page(matches, opts)
	limit := opts.EffectiveLimit()
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.TranscriptList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	} else {
		result.Data = []*api.Transcript{}
	}
	return result, nil
}

// page applies the After/Before cursor. An unknown cursor yields nothing.
func page(sorted []*api.Transcript, opts transport.ListOptions) []*api.Transcript {
	cursor := cmp.Or(opts.After, opts.Before)
	if cursor == "" {
		return sorted
	}
	idx := slices.IndexFunc(sorted, func(t *api.Transcript) bool { return t.ID == cursor })
	switch {
	case idx < 0:
		return nil
	case opts.After != "":
		return sorted[idx+1:]
	default:
		return sorted[:idx]
	}
}

func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored transcripts across all tenants.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry. Callers hold s.mu.
func (s *Store) evictOldest() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lru.Remove(back)
	delete(s.entries, id)
}
