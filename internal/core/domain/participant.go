package domain

import "time"

type Role string

const (
	// RoleModerator may receive and accept call notifications.
	RoleModerator Role = "moderator"
	RoleParticipant Role = "participant"
	// RoleOnCall is the role a caller transitions into when the moderator
	// accepts; the video layout renders participants carrying it.
	RoleOnCall Role = "onCall"
)

type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	RoomName string    `json:"room_name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// DisplayName returns the participant's name, falling back to the shared
// placeholder for unnamed participants.
func (p *Participant) DisplayName() string {
	if p.Name == "" {
		return DefaultCallerName
	}
	return p.Name
}
