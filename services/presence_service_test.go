package services

import (
	"context"
	"testing"
	"time"

	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceForTest() (*PresenceService, *fakeDynamo, *fakeEmitter) {
	dyn := newFakeDynamo()
	rt := &fakeEmitter{}
	return NewPresenceService(dyn, rt), dyn, rt
}

func TestConnectDisconnectTransitions(t *testing.T) {
	ps, dyn, rt := newPresenceForTest()
	ctx := context.Background()

	assert.False(t, ps.IsOnline("alice"))

	wentOnline := ps.Connect(ctx, "alice", "conn-1")
	assert.True(t, wentOnline)
	assert.True(t, ps.IsOnline("alice"))

	wentOffline := ps.Disconnect(ctx, "conn-1")
	assert.True(t, wentOffline)
	assert.False(t, ps.IsOnline("alice"))

	// Both transitions broadcast to the user's subscribers.
	events := rt.eventsFor(UserRoom("alice"))
	require.Len(t, events, 2)
	assert.Equal(t, models.EventPresenceOnline, events[0].Event)
	assert.Equal(t, models.EventPresenceOffline, events[1].Event)

	// And the stored row reflects the final state.
	var user models.User
	item, err := dyn.GetItem(ctx, models.UsersTable, userKey("alice"))
	require.NoError(t, err)
	require.NoError(t, attributevalue.UnmarshalMap(item, &user))
	assert.False(t, user.IsOnline)
	assert.NotEmpty(t, user.LastSeen)
}

func TestMultipleDevicesDoNotFlap(t *testing.T) {
	ps, _, rt := newPresenceForTest()
	ctx := context.Background()

	assert.True(t, ps.Connect(ctx, "alice", "phone"))
	assert.False(t, ps.Connect(ctx, "alice", "laptop"))

	// Closing one of two connections keeps the user online, silently.
	assert.False(t, ps.Disconnect(ctx, "phone"))
	assert.True(t, ps.IsOnline("alice"))
	assert.Len(t, rt.eventsFor(UserRoom("alice")), 1)

	assert.True(t, ps.Disconnect(ctx, "laptop"))
	assert.False(t, ps.IsOnline("alice"))
	assert.Len(t, rt.eventsFor(UserRoom("alice")), 2)
}

func TestDisconnectUnknownConnIsNoop(t *testing.T) {
	ps, _, rt := newPresenceForTest()

	assert.False(t, ps.Disconnect(context.Background(), "never-seen"))
	assert.Empty(t, rt.events)
}

func TestDoubleDisconnectCountsOnce(t *testing.T) {
	ps, _, _ := newPresenceForTest()
	ctx := context.Background()

	ps.Connect(ctx, "alice", "conn-1")
	assert.True(t, ps.Disconnect(ctx, "conn-1"))
	assert.False(t, ps.Disconnect(ctx, "conn-1"))
	assert.False(t, ps.IsOnline("alice"))
}

func TestReaperDropsSilentConnections(t *testing.T) {
	ps, _, _ := newPresenceForTest()
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ps.Clock = func() time.Time { return now }

	ps.Connect(ctx, "alice", "quiet")
	ps.Connect(ctx, "bob", "chatty")

	// Only one connection keeps heartbeating across the liveness window.
	now = now.Add(DefaultHeartbeatWindow / 2)
	ps.Heartbeat("chatty")
	now = now.Add(DefaultHeartbeatWindow/2 + time.Second)

	reaped := ps.ReapStale(ctx)
	assert.Equal(t, 1, reaped)
	assert.False(t, ps.IsOnline("alice"))
	assert.True(t, ps.IsOnline("bob"))
}

func TestHeartbeatUnknownConnIgnored(t *testing.T) {
	ps, _, _ := newPresenceForTest()

	ps.Heartbeat("never-seen")
	assert.Equal(t, 0, ps.ReapStale(context.Background()))
}
