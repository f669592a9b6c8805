package uilink

import (
	"time"

	"callwire/internal/core/ports"

	"github.com/google/uuid"
)

type showPayload struct {
	TicketID    string `json:"ticket_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionName  string `json:"action_name"`
	TimeoutMS   int64  `json:"timeout_ms"`
}

type hidePayload struct {
	TicketID string `json:"ticket_id"`
}

// WSNotifier implements the notification surface over the UI hub. Each Show
// mints a ticket id, pushes a show frame and wires the accept action back to
// the caller's callback.
type WSNotifier struct {
	hub *Hub
}

func NewWSNotifier(hub *Hub) ports.Notifier {
	return &WSNotifier{hub: hub}
}

func (n *WSNotifier) Show(opts ports.NotificationOptions, timeout time.Duration) (string, error) {
	ticketID := uuid.NewString()

	if opts.OnAction != nil {
		n.hub.RegisterAction(ticketID, opts.OnAction)
	}

	n.hub.Broadcast("notification.show", showPayload{
		TicketID:    ticketID,
		Title:       opts.Title,
		Description: opts.Description,
		ActionName:  opts.ActionName,
		TimeoutMS:   timeout.Milliseconds(),
	})

	return ticketID, nil
}

func (n *WSNotifier) Hide(ticketID string) {
	n.hub.UnregisterAction(ticketID)
	n.hub.Broadcast("notification.hide", hidePayload{TicketID: ticketID})
}
