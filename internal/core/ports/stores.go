package ports

import (
	"context"

	"callwire/internal/core/domain"
)

// CallStore is the shared, multi-writer collection of call requests. Any
// client may create and any client may delete, so Delete is idempotent and
// Create assumes no exclusivity.
type CallStore interface {
	// Create appends a record and returns the assigned id. It is a one-shot
	// operation: failures wrap domain.ErrStoreUnavailable and must not be
	// retried, a retry would create a duplicate request.
	Create(ctx context.Context, rec *domain.CallRequest) (string, error)

	// Subscribe delivers every record ever added to the room: records already
	// present at subscription time are replayed first, then live additions
	// follow for the lifetime of the subscription. Each record is delivered
	// at most once per subscription. Delivery order is not guaranteed to
	// match CreatedAt order. Subscribe blocks until ctx is done.
	Subscribe(ctx context.Context, roomName string, onAdded func(*domain.CallRequest)) error

	// Delete removes a record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// ParticipantRegistry is the shared conference participant state. The call
// coordinator only reads participants and requests role transitions; the
// registry owns the data.
type ParticipantRegistry interface {
	Add(ctx context.Context, p *domain.Participant) error
	GetByID(ctx context.Context, id string) (*domain.Participant, error)
	SetRole(ctx context.Context, id string, role domain.Role) error
	Remove(ctx context.Context, id string) error
	ListByRoom(ctx context.Context, roomName string) ([]*domain.Participant, error)
}
