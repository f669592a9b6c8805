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
	"golang.org/x/time/rate"
)

type callPublisher struct {
	store    ports.CallStore
	stats    *CallStats
	recorder Recorder
	logger   *zap.SugaredLogger

	// Per-caller token buckets so one participant cannot flood the room
	// with call requests.
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewCallPublisher(
	store ports.CallStore,
	stats *CallStats,
	recorder Recorder,
	logger *zap.SugaredLogger,
	callsPerMinute float64,
	burst int,
) ports.CallPublisher {
	if callsPerMinute <= 0 {
		callsPerMinute = 6
	}
	if burst <= 0 {
		burst = 2
	}
	return &callPublisher{
		store:    store,
		stats:    stats,
		recorder: recorder,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(callsPerMinute / 60.0),
		burst:    burst,
	}
}

func (p *callPublisher) limiter(callerID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, exists := p.limiters[callerID]
	if !exists {
		limiter = rate.NewLimiter(p.rate, p.burst)
		p.limiters[callerID] = limiter
	}
	return limiter
}

// Publish creates one call record in the shared store. It has no side effect
// besides the store mutation: a failure is surfaced to the caller without
// retry, because a retry could ring the moderator twice.
func (p *callPublisher) Publish(ctx context.Context, roomName string, caller *domain.Participant) (*domain.CallRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "call.publish")
	defer span.End()

	if !p.limiter(caller.ID).Allow() {
		return nil, domain.ErrRateLimited
	}

	rec := &domain.CallRequest{
		RoomName:   roomName,
		CallerID:   caller.ID,
		CallerName: caller.DisplayName(),
		CreatedAt:  time.Now().UnixMilli(),
	}

	id, err := p.store.Create(ctx, rec)
	if err != nil {
		tracing.RecordError(ctx, err)
		p.logger.Warnw("call publish failed",
			"room", roomName,
			"caller_id", caller.ID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrPublishFailed, err)
	}
	rec.ID = id

	if p.stats != nil {
		p.stats.RecordPublished(roomName)
	}
	if p.recorder != nil {
		p.recorder.CallPublished(roomName)
	}
	p.logger.Infow("call request published",
		"request_id", id,
		"room", roomName,
		"caller_id", caller.ID,
	)
	return rec, nil
}
