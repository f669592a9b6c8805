package domain

import "time"

// DefaultCallerName is used when a caller has no display name set.
const DefaultCallerName = "Random Participant"

// CallRequest is one call attempt, shared between all clients in a room
// through the call store. Records are immutable once created; the store
// assigns ID on creation.
type CallRequest struct {
	ID         string `json:"id"`
	RoomName   string `json:"room_name"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	CreatedAt  int64  `json:"created_at"` // epoch milliseconds
}

// Validate checks the fields a record must carry to be processed. Records
// arriving from the store with missing fields are rejected, not propagated.
func (r *CallRequest) Validate() error {
	if r.RoomName == "" || r.CallerID == "" {
		return ErrMalformedRecord
	}
	if r.CreatedAt <= 0 {
		return ErrMalformedRecord
	}
	return nil
}

// Age returns how long ago the request was created.
func (r *CallRequest) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.CreatedAt))
}

// RequestState tracks what happened to a call request on this client.
type RequestState string

const (
	// StatePending is the initial state before the authorization gate.
	StatePending RequestState = "pending"
	// StateIgnored means the local client is not the moderator of the
	// record's room; no notification was raised.
	StateIgnored RequestState = "ignored"
	// StateSuperseded means another notification was active when the
	// record arrived; it is tracked but never surfaced.
	StateSuperseded RequestState = "superseded"
	// StateShown means a notification is currently displayed.
	StateShown RequestState = "shown"
	// StateAccepted means the moderator accepted the call.
	StateAccepted RequestState = "accepted"
	// StateExpired means the notification timed out without an accept.
	StateExpired RequestState = "expired"
)
