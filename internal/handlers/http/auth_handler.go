package http

import (
	"net/http"
	"time"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"
	"callwire/internal/core/services"
	"callwire/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authService services.AuthService
	registry    ports.ParticipantRegistry
	roomName    string
}

func NewAuthHandler(authService services.AuthService, registry ports.ParticipantRegistry, roomName string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		registry:    registry,
		roomName:    roomName,
	}
}

// Join registers a participant in the hosted room and issues a session
// token. The first participant into the room becomes the moderator.
func (h *AuthHandler) Join(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"max=100"`
		Room string `json:"room"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Room != "" && req.Room != h.roomName {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room not hosted by this session"})
		return
	}

	existing, err := h.registry.ListByRoom(c.Request.Context(), h.roomName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	role := domain.RoleParticipant
	if len(existing) == 0 {
		role = domain.RoleModerator
	}

	participant := &domain.Participant{
		ID:       uuid.NewString(),
		Name:     req.Name,
		RoomName: h.roomName,
		Role:     role,
		JoinedAt: time.Now(),
	}

	if err := h.registry.Add(c.Request.Context(), participant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.GenerateToken(participant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"participant": participant,
		"token":       token,
	})
}

// Leave removes the authenticated participant from the registry.
func (h *AuthHandler) Leave(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.registry.Remove(c.Request.Context(), claims.ParticipantID); err != nil {
		if err == domain.ErrParticipantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": true})
}
