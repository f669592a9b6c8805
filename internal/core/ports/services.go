package ports

import (
	"context"

	"callwire/internal/core/domain"
)

// CallPublisher creates call requests on behalf of a participant.
type CallPublisher interface {
	Publish(ctx context.Context, roomName string, caller *domain.Participant) (*domain.CallRequest, error)
}

// RequestStatus is a diagnostic snapshot of one tracked call request.
type RequestStatus struct {
	Request    *domain.CallRequest `json:"request"`
	State      domain.RequestState `json:"state"`
	AgeSeconds float64             `json:"age_seconds"`
}

// CallCoordinator owns the local reaction pipeline of one conference
// session: it listens to the store, gates records by role and room, raises
// at most one notification at a time, promotes accepted callers and cleans
// up the session's records at teardown.
type CallCoordinator interface {
	// Start subscribes to the call store and processes records until ctx is
	// cancelled.
	Start(ctx context.Context) error

	// Accept promotes the caller of the given request. Accepting the same
	// request twice performs the role transition only once.
	Accept(requestID string) error

	// Requests returns all records this client has seen, in arrival order.
	Requests() []RequestStatus

	// Cleanup deletes every tracked record belonging to the session's room.
	// It is best-effort and must be called exactly once at teardown, before
	// the underlying connection is closed.
	Cleanup(ctx context.Context)
}
