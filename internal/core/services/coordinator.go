package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"
	"callwire/pkg/tracing"

	"go.uber.org/zap"
)

// DefaultNotificationTimeout is how long an incoming-call notification stays
// on screen before it expires unanswered.
const DefaultNotificationTimeout = 15 * time.Second

// Recorder receives call lifecycle events for metrics export. Implementations
// must be safe for concurrent use.
type Recorder interface {
	CallPublished(roomName string)
	NotificationShown(roomName string)
	CallAccepted(roomName string)
	NotificationExpired(roomName string)
	CleanupDeleted(roomName string, count int)
	TrackedRequests(roomName string, count int)
}

// trackedRequest pairs a record with what this client did about it.
type trackedRequest struct {
	record *domain.CallRequest
	state  domain.RequestState
}

// Coordinator reacts to call requests for one conference session. One
// instance is constructed at join and disposed at teardown; it owns its
// local state exclusively and never shares it across sessions.
type Coordinator struct {
	roomName string
	selfID   string

	store    ports.CallStore
	registry ports.ParticipantRegistry
	layout   ports.VideoLayout
	notifier ports.Notifier
	stats    *CallStats
	recorder Recorder
	logger   *zap.SugaredLogger

	notificationTimeout time.Duration

	mu              sync.Mutex
	activeRequests  []*trackedRequest
	byID            map[string]*trackedRequest
	acceptedCallers map[string]bool
	activeTicketID  string
	expiryTimer     *time.Timer
	cleaned         bool
}

func NewCoordinator(
	roomName string,
	selfID string,
	store ports.CallStore,
	registry ports.ParticipantRegistry,
	layout ports.VideoLayout,
	notifier ports.Notifier,
	stats *CallStats,
	recorder Recorder,
	logger *zap.SugaredLogger,
	notificationTimeout time.Duration,
) *Coordinator {
	if notificationTimeout <= 0 {
		notificationTimeout = DefaultNotificationTimeout
	}
	return &Coordinator{
		roomName:            roomName,
		selfID:              selfID,
		store:               store,
		registry:            registry,
		layout:              layout,
		notifier:            notifier,
		stats:               stats,
		recorder:            recorder,
		logger:              logger,
		notificationTimeout: notificationTimeout,
		byID:                make(map[string]*trackedRequest),
		acceptedCallers:     make(map[string]bool),
	}
}

// Start subscribes to the call store and blocks until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.store.Subscribe(ctx, c.roomName, c.handleAdded)
}

// handleAdded runs once per record delivered by the store subscription.
// Delivery order does not match creation order; eligibility is decided per
// record, never by reordering.
func (c *Coordinator) handleAdded(rec *domain.CallRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracked := &trackedRequest{record: rec, state: domain.StatePending}
	c.activeRequests = append(c.activeRequests, tracked)
	c.byID[rec.ID] = tracked
	if c.recorder != nil {
		c.recorder.TrackedRequests(c.roomName, len(c.activeRequests))
	}

	// Only the moderator of the record's own room gets notified.
	if !c.authorized(rec) {
		tracked.state = domain.StateIgnored
		return
	}

	// Single active notification: a record arriving while another ticket is
	// showing is tracked but never surfaced, not even after that ticket
	// clears. The moderator has to be pinged again.
	if c.activeTicketID != "" {
		tracked.state = domain.StateSuperseded
		c.logger.Debugw("call request superseded by active notification",
			"request_id", rec.ID,
			"caller_id", rec.CallerID,
		)
		return
	}

	c.showLocked(tracked)
}

func (c *Coordinator) authorized(rec *domain.CallRequest) bool {
	if rec.RoomName != c.roomName {
		return false
	}
	self, err := c.registry.GetByID(context.Background(), c.selfID)
	if err != nil {
		c.logger.Warnw("local participant lookup failed", "error", err)
		return false
	}
	return self.Role == domain.RoleModerator
}

// showLocked raises the notification for a request. Caller holds c.mu.
func (c *Coordinator) showLocked(tracked *trackedRequest) {
	rec := tracked.record
	name := rec.CallerName
	if name == "" {
		name = domain.DefaultCallerName
	}

	ticketID, err := c.notifier.Show(ports.NotificationOptions{
		Title:       fmt.Sprintf("%s is calling you!", name),
		Description: "Just ignore this notification if you don't want to pick up",
		ActionName:  "Accept Call",
		OnAction: func() {
			if err := c.Accept(rec.ID); err != nil {
				c.logger.Warnw("accept from notification failed",
					"request_id", rec.ID,
					"error", err,
				)
			}
		},
	}, c.notificationTimeout)
	if err != nil {
		c.logger.Warnw("failed to show call notification",
			"request_id", rec.ID,
			"error", err,
		)
		return
	}

	tracked.state = domain.StateShown
	c.activeTicketID = ticketID
	// The captured ticket id is compared at fire time so a stale timer can
	// never hide a ticket shown later for a different record.
	c.expiryTimer = time.AfterFunc(c.notificationTimeout, func() {
		c.expire(ticketID, rec.ID)
	})

	if c.stats != nil {
		c.stats.RecordShown(c.roomName)
	}
	if c.recorder != nil {
		c.recorder.NotificationShown(c.roomName)
	}
	c.logger.Infow("incoming call notification shown",
		"request_id", rec.ID,
		"caller_id", rec.CallerID,
		"caller_name", name,
		"ticket_id", ticketID,
	)
}

// expire fires when the notification timeout elapses without an accept. The
// caller is not promoted and the record stays tracked for diagnostics.
func (c *Coordinator) expire(ticketID, requestID string) {
	c.mu.Lock()
	if c.activeTicketID != ticketID {
		c.mu.Unlock()
		return
	}
	c.activeTicketID = ""
	c.expiryTimer = nil
	if tracked, ok := c.byID[requestID]; ok && tracked.state == domain.StateShown {
		tracked.state = domain.StateExpired
	}
	c.mu.Unlock()

	c.notifier.Hide(ticketID)
	if c.stats != nil {
		c.stats.RecordExpired(c.roomName)
	}
	if c.recorder != nil {
		c.recorder.NotificationExpired(c.roomName)
	}
	c.logger.Infow("call notification expired unanswered",
		"request_id", requestID,
		"ticket_id", ticketID,
	)
}

// Accept dismisses the active notification and promotes the caller of the
// given request into the onCall role, asking the video layout for a
// container. The dismissal is unconditional; only the role transition is
// gated, at most once per caller, so a repeat request from an already
// promoted caller still clears its notification.
func (c *Coordinator) Accept(requestID string) error {
	ctx, span := tracing.StartSpan(context.Background(), "call.accept")
	defer span.End()

	c.mu.Lock()
	tracked, ok := c.byID[requestID]
	if !ok {
		c.mu.Unlock()
		return domain.ErrRequestNotFound
	}
	rec := tracked.record

	ticketID := c.activeTicketID
	if ticketID != "" {
		c.activeTicketID = ""
		if c.expiryTimer != nil {
			c.expiryTimer.Stop()
			c.expiryTimer = nil
		}
	}

	alreadyAccepted := c.acceptedCallers[rec.CallerID]
	prevState := tracked.state
	c.acceptedCallers[rec.CallerID] = true
	tracked.state = domain.StateAccepted
	c.mu.Unlock()

	if ticketID != "" {
		c.notifier.Hide(ticketID)
	}
	if alreadyAccepted {
		// The caller is already on the call; their repeat request only
		// needed its notification dismissed.
		return nil
	}

	if err := c.registry.SetRole(ctx, rec.CallerID, domain.RoleOnCall); err != nil {
		// Release the claim so a later accept can retry the promotion.
		c.mu.Lock()
		delete(c.acceptedCallers, rec.CallerID)
		tracked.state = prevState
		c.mu.Unlock()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("role transition for caller %s: %w", rec.CallerID, err)
	}

	// Look the participant up by id rather than reusing the record snapshot,
	// which may be stale by the time the moderator accepts.
	participant, err := c.registry.GetByID(ctx, rec.CallerID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("resolve accepted caller %s: %w", rec.CallerID, err)
	}
	if err := c.layout.AddRemoteParticipantContainer(participant); err != nil {
		c.logger.Warnw("video layout rejected participant container",
			"caller_id", rec.CallerID,
			"error", err,
		)
	}

	if c.stats != nil {
		c.stats.RecordAccepted(c.roomName)
	}
	if c.recorder != nil {
		c.recorder.CallAccepted(c.roomName)
	}
	c.logger.Infow("call accepted",
		"request_id", requestID,
		"caller_id", rec.CallerID,
	)
	return nil
}

// Requests returns a snapshot of every record seen this session, in arrival
// order, with age computed from the record's own creation time.
func (c *Coordinator) Requests() []ports.RequestStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	out := make([]ports.RequestStatus, 0, len(c.activeRequests))
	for _, t := range c.activeRequests {
		out = append(out, ports.RequestStatus{
			Request:    t.record,
			State:      t.state,
			AgeSeconds: t.record.Age(now).Seconds(),
		})
	}
	return out
}

// Cleanup deletes every tracked record belonging to this session's room.
// Delete failures are logged and skipped; teardown always completes. Records
// from other rooms are left untouched.
func (c *Coordinator) Cleanup(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "call.cleanup")
	defer span.End()

	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	pending := c.activeRequests
	c.activeRequests = nil
	c.byID = make(map[string]*trackedRequest)
	if c.activeTicketID != "" {
		if c.expiryTimer != nil {
			c.expiryTimer.Stop()
			c.expiryTimer = nil
		}
		c.notifier.Hide(c.activeTicketID)
		c.activeTicketID = ""
	}
	c.mu.Unlock()

	deleted := 0
	for _, t := range pending {
		if t.record.RoomName != c.roomName {
			continue
		}
		if err := c.store.Delete(ctx, t.record.ID); err != nil {
			c.logger.Warnw("failed to delete call record during teardown",
				"request_id", t.record.ID,
				"error", err,
			)
			continue
		}
		deleted++
	}

	if c.stats != nil {
		c.stats.RecordCleaned(c.roomName, deleted)
	}
	if c.recorder != nil {
		c.recorder.CleanupDeleted(c.roomName, deleted)
		c.recorder.TrackedRequests(c.roomName, 0)
	}
	c.logger.Infow("call records cleaned up",
		"room", c.roomName,
		"deleted", deleted,
		"tracked", len(pending),
	)
}
