package http

import (
	"errors"
	"net/http"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"
	"callwire/internal/core/services"
	"callwire/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	publisher   ports.CallPublisher
	coordinator ports.CallCoordinator
	stats       *services.CallStats
	roomName    string
}

func NewCallHandler(
	publisher ports.CallPublisher,
	coordinator ports.CallCoordinator,
	stats *services.CallStats,
	roomName string,
) *CallHandler {
	return &CallHandler{
		publisher:   publisher,
		coordinator: coordinator,
		stats:       stats,
		roomName:    roomName,
	}
}

// PublishCall creates a call request for the authenticated participant.
func (h *CallHandler) PublishCall(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if claims.RoomName != h.roomName {
		c.JSON(http.StatusForbidden, gin.H{"error": "token issued for another room"})
		return
	}

	caller := &domain.Participant{
		ID:       claims.ParticipantID,
		Name:     claims.Name,
		RoomName: claims.RoomName,
		Role:     claims.Role,
	}

	rec, err := h.publisher.Publish(c.Request.Context(), h.roomName, caller)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "call rate limit exceeded"})
		case errors.Is(err, domain.ErrPublishFailed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "call could not be published"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"call": rec,
	})
}

// ListCalls returns the requests tracked by this session, in arrival order,
// with lifecycle state and age.
func (h *CallHandler) ListCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"calls": h.coordinator.Requests(),
	})
}

// AcceptCall promotes the caller of the given request. Moderator only,
// enforced by middleware.
func (h *CallHandler) AcceptCall(c *gin.Context) {
	requestID := c.Param("id")

	if err := h.coordinator.Accept(requestID); err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "call request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// CallStats returns the per-room call counters.
func (h *CallHandler) CallStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats": h.stats.Snapshot(h.roomName),
	})
}
