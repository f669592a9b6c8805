package uilink

import (
	"callwire/internal/core/domain"
	"callwire/internal/core/ports"
)

type addContainerPayload struct {
	Participant *domain.Participant `json:"participant"`
}

// WSLayout forwards layout directives to the UI clients: when a caller is
// promoted the UI is told to add a remote participant container for them.
type WSLayout struct {
	hub *Hub
}

func NewWSLayout(hub *Hub) ports.VideoLayout {
	return &WSLayout{hub: hub}
}

func (l *WSLayout) AddRemoteParticipantContainer(p *domain.Participant) error {
	l.hub.Broadcast("layout.add_container", addContainerPayload{Participant: p})
	return nil
}
