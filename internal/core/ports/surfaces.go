package ports

import (
	"time"

	"callwire/internal/core/domain"
)

// NotificationOptions describe one transient notification with a single
// named action.
type NotificationOptions struct {
	Title       string
	Description string
	ActionName  string
	// OnAction is invoked when the user triggers the named action before
	// the notification is hidden.
	OnAction func()
}

// Notifier is the notification surface shown to the local user. Show returns
// a ticket id identifying the displayed notification; Hide is idempotent.
type Notifier interface {
	Show(opts NotificationOptions, timeout time.Duration) (string, error)
	Hide(ticketID string)
}

// VideoLayout is the external layout collaborator. The coordinator asks it
// to render a container for a newly promoted participant.
type VideoLayout interface {
	AddRemoteParticipantContainer(p *domain.Participant) error
}
