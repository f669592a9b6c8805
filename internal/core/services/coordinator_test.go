package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu        sync.Mutex
	deleted   []string
	deleteErr error
}

func (s *fakeStore) Create(ctx context.Context, rec *domain.CallRequest) (string, error) {
	return "unused", nil
}

func (s *fakeStore) Subscribe(ctx context.Context, roomName string, onAdded func(*domain.CallRequest)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

type shownNotification struct {
	ticketID string
	opts     ports.NotificationOptions
}

type fakeNotifier struct {
	mu     sync.Mutex
	seq    int
	shown  []shownNotification
	hidden []string
}

func (n *fakeNotifier) Show(opts ports.NotificationOptions, timeout time.Duration) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	ticketID := fmt.Sprintf("ticket-%d", n.seq)
	n.shown = append(n.shown, shownNotification{ticketID: ticketID, opts: opts})
	return ticketID, nil
}

func (n *fakeNotifier) Hide(ticketID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hidden = append(n.hidden, ticketID)
}

func (n *fakeNotifier) shownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

func (n *fakeNotifier) hiddenCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.hidden)
}

func (n *fakeNotifier) lastShown() shownNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown[len(n.shown)-1]
}

type fakeRegistry struct {
	mu           sync.Mutex
	participants map[string]*domain.Participant
	roleChanges  []string
	setRoleErr   error
}

func newFakeRegistry(participants ...*domain.Participant) *fakeRegistry {
	r := &fakeRegistry{participants: make(map[string]*domain.Participant)}
	for _, p := range participants {
		copied := *p
		r.participants[p.ID] = &copied
	}
	return r
}

func (r *fakeRegistry) Add(ctx context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.participants[p.ID] = &copied
	return nil
}

func (r *fakeRegistry) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeRegistry) SetRole(ctx context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setRoleErr != nil {
		return r.setRoleErr
	}
	p, ok := r.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Role = role
	r.roleChanges = append(r.roleChanges, id)
	return nil
}

func (r *fakeRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
	return nil
}

func (r *fakeRegistry) ListByRoom(ctx context.Context, roomName string) ([]*domain.Participant, error) {
	return nil, nil
}

func (r *fakeRegistry) roleChangeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roleChanges)
}

func (r *fakeRegistry) roleOf(id string) domain.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[id].Role
}

type fakeLayout struct {
	mu    sync.Mutex
	added []*domain.Participant
}

func (l *fakeLayout) AddRemoteParticipantContainer(p *domain.Participant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.added = append(l.added, p)
	return nil
}

func (l *fakeLayout) addedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.added)
}

func request(id, room, callerID string, createdAt int64) *domain.CallRequest {
	return &domain.CallRequest{
		ID:         id,
		RoomName:   room,
		CallerID:   callerID,
		CallerName: "Caller " + callerID,
		CreatedAt:  createdAt,
	}
}

type coordinatorFixture struct {
	coordinator *Coordinator
	store       *fakeStore
	notifier    *fakeNotifier
	registry    *fakeRegistry
	layout      *fakeLayout
}

func newFixture(t *testing.T, selfRole domain.Role, timeout time.Duration) *coordinatorFixture {
	t.Helper()

	store := &fakeStore{}
	notifier := &fakeNotifier{}
	layout := &fakeLayout{}
	registry := newFakeRegistry(
		&domain.Participant{ID: "self", Name: "Host", RoomName: "alpha", Role: selfRole},
		&domain.Participant{ID: "caller-1", Name: "One", RoomName: "alpha", Role: domain.RoleParticipant},
		&domain.Participant{ID: "caller-2", Name: "Two", RoomName: "alpha", Role: domain.RoleParticipant},
	)

	coordinator := NewCoordinator(
		"alpha", "self",
		store, registry, layout, notifier,
		NewCallStats(), nil,
		zap.NewNop().Sugar(),
		timeout,
	)
	return &coordinatorFixture{
		coordinator: coordinator,
		store:       store,
		notifier:    notifier,
		registry:    registry,
		layout:      layout,
	}
}

func TestNonModeratorNeverNotified(t *testing.T) {
	f := newFixture(t, domain.RoleParticipant, time.Second)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	assert.Equal(t, 0, f.notifier.shownCount())
	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.StateIgnored, statuses[0].State)
}

func TestOtherRoomNeverNotified(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Second)

	f.coordinator.handleAdded(request("r1", "beta", "caller-1", time.Now().UnixMilli()))

	assert.Equal(t, 0, f.notifier.shownCount())
	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.StateIgnored, statuses[0].State)
}

func TestSingleActiveNotification(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))
	f.coordinator.handleAdded(request("r2", "alpha", "caller-2", time.Now().UnixMilli()))

	assert.Equal(t, 1, f.notifier.shownCount())

	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.StateShown, statuses[0].State)
	assert.Equal(t, domain.StateSuperseded, statuses[1].State)
}

func TestNotificationNamesCaller(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	shown := f.notifier.lastShown()
	assert.Equal(t, "Caller caller-1 is calling you!", shown.opts.Title)
	assert.Equal(t, "Accept Call", shown.opts.ActionName)
}

func TestUnnamedCallerGetsPlaceholder(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	rec := request("r1", "alpha", "caller-1", time.Now().UnixMilli())
	rec.CallerName = ""
	f.coordinator.handleAdded(rec)

	shown := f.notifier.lastShown()
	assert.Equal(t, domain.DefaultCallerName+" is calling you!", shown.opts.Title)
}

func TestAcceptPromotesExactlyOnce(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	require.NoError(t, f.coordinator.Accept("r1"))
	require.NoError(t, f.coordinator.Accept("r1"))

	assert.Equal(t, 1, f.registry.roleChangeCount())
	assert.Equal(t, 1, f.layout.addedCount())
	assert.Equal(t, domain.RoleOnCall, f.registry.roleOf("caller-1"))
	assert.Equal(t, 1, f.notifier.hiddenCount())

	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.StateAccepted, statuses[0].State)
}

func TestAcceptUsesFreshParticipantLookup(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	// The registry entry changes between arrival and accept; the layout must
	// receive the current participant, not the record snapshot.
	require.NoError(t, f.registry.Add(context.Background(), &domain.Participant{
		ID: "caller-1", Name: "Renamed", RoomName: "alpha", Role: domain.RoleParticipant,
	}))
	require.NoError(t, f.coordinator.Accept("r1"))

	require.Equal(t, 1, f.layout.addedCount())
	assert.Equal(t, "Renamed", f.layout.added[0].Name)
	assert.Equal(t, domain.RoleOnCall, f.layout.added[0].Role)
}

func TestAcceptViaNotificationAction(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	shown := f.notifier.lastShown()
	require.NotNil(t, shown.opts.OnAction)
	shown.opts.OnAction()

	assert.Equal(t, domain.RoleOnCall, f.registry.roleOf("caller-1"))
}

func TestRepeatCallerNotificationDismissedOnAccept(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))
	require.NoError(t, f.coordinator.Accept("r1"))

	// The promoted caller rings again; the notification shows and its
	// accept must still dismiss it even though the role transition already
	// happened.
	f.coordinator.handleAdded(request("r2", "alpha", "caller-1", time.Now().UnixMilli()))
	require.Equal(t, 2, f.notifier.shownCount())

	shown := f.notifier.lastShown()
	require.NotNil(t, shown.opts.OnAction)
	shown.opts.OnAction()

	assert.Equal(t, 2, f.notifier.hiddenCount())
	assert.Equal(t, 1, f.registry.roleChangeCount())

	// The ticket cleared, so the next caller rings through instead of
	// being superseded.
	f.coordinator.handleAdded(request("r3", "alpha", "caller-2", time.Now().UnixMilli()))
	assert.Equal(t, 3, f.notifier.shownCount())
}

func TestAcceptRetriedAfterRegistryFailure(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	f.registry.setRoleErr = errors.New("registry offline")
	require.Error(t, f.coordinator.Accept("r1"))
	assert.Equal(t, domain.RoleParticipant, f.registry.roleOf("caller-1"))

	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 1)
	assert.NotEqual(t, domain.StateAccepted, statuses[0].State)

	// The failed accept must not burn the at-most-once claim.
	f.registry.setRoleErr = nil
	require.NoError(t, f.coordinator.Accept("r1"))
	assert.Equal(t, domain.RoleOnCall, f.registry.roleOf("caller-1"))
	assert.Equal(t, 1, f.registry.roleChangeCount())
}

func TestAcceptUnknownRequest(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	err := f.coordinator.Accept("missing")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestNotificationExpiresWithoutPromotion(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, 40*time.Millisecond)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	require.Eventually(t, func() bool {
		return f.notifier.hiddenCount() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, f.registry.roleChangeCount())
	assert.Equal(t, domain.RoleParticipant, f.registry.roleOf("caller-1"))

	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.StateExpired, statuses[0].State)
}

func TestBacklogNotReplayedAfterExpiry(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, 40*time.Millisecond)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))
	f.coordinator.handleAdded(request("r2", "alpha", "caller-2", time.Now().UnixMilli()))

	require.Eventually(t, func() bool {
		return f.notifier.hiddenCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The superseded request is never surfaced retroactively, but a new
	// arrival after the ticket cleared can show.
	assert.Equal(t, 1, f.notifier.shownCount())

	f.coordinator.handleAdded(request("r3", "alpha", "caller-2", time.Now().UnixMilli()))
	assert.Equal(t, 2, f.notifier.shownCount())
}

func TestStaleTimerDoesNotHideNewTicket(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, 60*time.Millisecond)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))
	require.NoError(t, f.coordinator.Accept("r1"))

	f.coordinator.handleAdded(request("r2", "alpha", "caller-2", time.Now().UnixMilli()))
	require.Equal(t, 2, f.notifier.shownCount())

	// Wait well past the first notification's timeout; only its own hide
	// (from the accept) may have happened, the second ticket stays live
	// until its own timer fires.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, f.notifier.hiddenCount())

	require.Eventually(t, func() bool {
		return f.notifier.hiddenCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestOutOfOrderDeliveryKeptInArrivalOrder(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	// r2 was created after r1 but is delivered first.
	f.coordinator.handleAdded(request("r2", "alpha", "caller-2", 100))
	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", 50))

	statuses := f.coordinator.Requests()
	require.Len(t, statuses, 2)
	assert.Equal(t, "r2", statuses[0].Request.ID)
	assert.Equal(t, "r1", statuses[1].Request.ID)
	assert.Equal(t, domain.StateShown, statuses[0].State)
	assert.Equal(t, domain.StateSuperseded, statuses[1].State)
}

func TestCleanupScopedToRoom(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))
	f.coordinator.handleAdded(request("r2", "alpha", "caller-2", time.Now().UnixMilli()))
	f.coordinator.handleAdded(request("r3", "beta", "caller-1", time.Now().UnixMilli()))

	f.coordinator.Cleanup(context.Background())

	assert.ElementsMatch(t, []string{"r1", "r2"}, f.store.deletedIDs())
	assert.Empty(t, f.coordinator.Requests())
}

func TestCleanupSwallowsDeleteFailures(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)
	f.store.deleteErr = domain.ErrStoreUnavailable

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	// Must not panic or block; records are cleared locally regardless.
	f.coordinator.Cleanup(context.Background())
	assert.Empty(t, f.coordinator.Requests())
}

func TestCleanupRunsOnce(t *testing.T) {
	f := newFixture(t, domain.RoleModerator, time.Minute)

	f.coordinator.handleAdded(request("r1", "alpha", "caller-1", time.Now().UnixMilli()))

	f.coordinator.Cleanup(context.Background())
	f.coordinator.Cleanup(context.Background())

	assert.Equal(t, []string{"r1"}, f.store.deletedIDs())
}
