package memory

import (
	"context"
	"fmt"
	"sync"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"
)

// MemoryParticipantRegistry holds the conference participant state for this
// process. It stands in for the shared conference registry; the call
// coordinator only reads from it and requests role transitions.
type MemoryParticipantRegistry struct {
	participants map[string]*domain.Participant
	mu           sync.RWMutex
}

func NewMemoryParticipantRegistry() ports.ParticipantRegistry {
	return &MemoryParticipantRegistry{
		participants: make(map[string]*domain.Participant),
	}
}

func (r *MemoryParticipantRegistry) Add(ctx context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[p.ID]; exists {
		return fmt.Errorf("participant already exists: %s", p.ID)
	}

	copied := *p
	r.participants[p.ID] = &copied
	return nil
}

func (r *MemoryParticipantRegistry) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.participants[id]
	if !exists {
		return nil, domain.ErrParticipantNotFound
	}

	copied := *p
	return &copied, nil
}

func (r *MemoryParticipantRegistry) SetRole(ctx context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.participants[id]
	if !exists {
		return domain.ErrParticipantNotFound
	}

	p.Role = role
	return nil
}

func (r *MemoryParticipantRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[id]; !exists {
		return domain.ErrParticipantNotFound
	}

	delete(r.participants, id)
	return nil
}

func (r *MemoryParticipantRegistry) ListByRoom(ctx context.Context, roomName string) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roomParticipants []*domain.Participant
	for _, p := range r.participants {
		if p.RoomName == roomName {
			copied := *p
			roomParticipants = append(roomParticipants, &copied)
		}
	}

	return roomParticipants, nil
}
