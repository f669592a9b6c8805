package memory

import (
	"context"
	"sync"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"

	"github.com/google/uuid"
)

type subscriber struct {
	roomName string
	ch       chan *domain.CallRequest
}

// MemoryCallStore is the in-process CallStore used when Redis is disabled
// and in tests. It preserves the shared-store contract: replay-on-subscribe,
// at-most-once delivery per subscription and idempotent deletes.
type MemoryCallStore struct {
	mu      sync.Mutex
	records []*domain.CallRequest
	byID    map[string]*domain.CallRequest
	subs    map[*subscriber]struct{}
}

func NewMemoryCallStore() ports.CallStore {
	return &MemoryCallStore{
		byID: make(map[string]*domain.CallRequest),
		subs: make(map[*subscriber]struct{}),
	}
}

func (s *MemoryCallStore) Create(ctx context.Context, rec *domain.CallRequest) (string, error) {
	stored := *rec
	stored.ID = uuid.NewString()

	s.mu.Lock()
	s.records = append(s.records, &stored)
	s.byID[stored.ID] = &stored
	for sub := range s.subs {
		if sub.roomName != stored.RoomName {
			continue
		}
		delivered := stored
		select {
		case sub.ch <- &delivered:
		default:
			// Slow subscriber; it will not see this record live. The next
			// fresh subscription replays it.
		}
	}
	s.mu.Unlock()

	return stored.ID, nil
}

func (s *MemoryCallStore) Subscribe(ctx context.Context, roomName string, onAdded func(*domain.CallRequest)) error {
	sub := &subscriber{
		roomName: roomName,
		ch:       make(chan *domain.CallRequest, 64),
	}

	s.mu.Lock()
	var replay []*domain.CallRequest
	for _, rec := range s.records {
		if rec.RoomName == roomName {
			copied := *rec
			replay = append(replay, &copied)
		}
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()

	seen := make(map[string]struct{})
	for _, rec := range replay {
		seen[rec.ID] = struct{}{}
		onAdded(rec)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-sub.ch:
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			onAdded(rec)
		}
	}
}

func (s *MemoryCallStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; !exists {
		return nil
	}
	delete(s.byID, id)
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	return nil
}
