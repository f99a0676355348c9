package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callFixture struct {
	svc      *CallService
	dyn      *fakeDynamo
	rooms    *fakeRooms
	rt       *fakeEmitter
	notifier *fakeNotifier
	now      time.Time
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	f := &callFixture{
		dyn:      newFakeDynamo(),
		rooms:    &fakeRooms{},
		rt:       &fakeEmitter{},
		notifier: &fakeNotifier{},
		now:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svc = &CallService{
		Dynamo:        f.dyn,
		Rooms:         f.rooms,
		Matches:       newFakeMatcher([2]string{"alice", "bob"}),
		Notifications: f.notifier,
		RT:            f.rt,
		Clock:         func() time.Time { return f.now },
	}
	return f
}

func TestInitiateValidation(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, "alice", "alice", models.CallTypeVideo)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Initiate(ctx, "alice", "bob", "hologram")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestInitiateRequiresMatch(t *testing.T) {
	f := newCallFixture(t)

	_, err := f.svc.Initiate(context.Background(), "alice", "carol", models.CallTypeVideo)
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
	assert.Empty(t, f.rooms.created)
}

func TestCallHappyPath(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusPending, call.Status)
	assert.NotEmpty(t, call.RoomURL)
	require.Len(t, f.notifier.sentTo("bob"), 1)
	assert.Equal(t, models.NotificationCallInitiate, f.notifier.sentTo("bob")[0].Type)

	f.now = f.now.Add(3 * time.Second)
	accepted, token, err := f.svc.Accept(ctx, call.CallID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusActive, accepted.Status)
	assert.NotEmpty(t, token)

	f.now = f.now.Add(90 * time.Second)
	ended, err := f.svc.End(ctx, call.CallID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusEnded, ended.Status)
	assert.Equal(t, int64(90), ended.Duration)

	// Lock released, room torn down.
	assert.Equal(t, 0, f.dyn.count(models.CallLocksTable))
	assert.Equal(t, []string{call.CallID}, f.rooms.deleted)
}

func TestDecline(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVoice)
	require.NoError(t, err)

	declined, err := f.svc.Decline(ctx, call.CallID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusDeclined, declined.Status)
	assert.Zero(t, declined.Duration)
	assert.Equal(t, 0, f.dyn.count(models.CallLocksTable))

	// A declined call cannot be accepted afterwards.
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	assert.Equal(t, apperrors.KindStateConflict, apperrors.KindOf(err))
	assert.Equal(t, models.CallStatusDeclined, apperrors.DetailsOf(err)["currentState"])
}

func TestSecondInitiateForPairBlocked(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	first, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, "bob", "alice", models.CallTypeVideo)
	assert.Equal(t, apperrors.KindStateConflict, apperrors.KindOf(err))
	assert.Equal(t, models.CallStatusPending, apperrors.DetailsOf(err)["currentState"])

	// Ending the first call frees the pair again.
	_, _, err = f.svc.Accept(ctx, first.CallID, "bob")
	require.NoError(t, err)
	_, err = f.svc.End(ctx, first.CallID, "bob")
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, "bob", "alice", models.CallTypeVideo)
	assert.NoError(t, err)
}

func TestConcurrentAcceptDeclineOneWinner(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := f.svc.Accept(ctx, call.CallID, "bob")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := f.svc.Decline(ctx, call.CallID, "bob")
		results <- err
	}()
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else if apperrors.KindOf(err) == apperrors.KindStateConflict {
			conflicts++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	final, err := f.svc.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.True(t, final.Terminal() || final.Status == models.CallStatusActive)
}

func TestProvisioningFailureLeavesNothingBehind(t *testing.T) {
	f := newCallFixture(t)
	f.rooms.createErr = errors.New("provider down")
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	assert.Equal(t, apperrors.KindUpstreamFailure, apperrors.KindOf(err))

	// No pending record, no lock: the pair can retry immediately.
	assert.Equal(t, 0, f.dyn.count(models.VideoCallsTable))
	assert.Equal(t, 0, f.dyn.count(models.CallLocksTable))

	f.rooms.createErr = nil
	_, err = f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	assert.NoError(t, err)
}

func TestTokenFailureAbortsAcceptCleanly(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	f.rooms.tokenErr = errors.New("token service down")
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	assert.Equal(t, apperrors.KindUpstreamFailure, apperrors.KindOf(err))

	// The call is still pending; accept works once the provider recovers.
	current, err := f.svc.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusPending, current.Status)

	f.rooms.tokenErr = nil
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	assert.NoError(t, err)
}

func TestTeardownFailureDoesNotBlockEnd(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	require.NoError(t, err)

	f.rooms.deleteErr = errors.New("provider down")
	ended, err := f.svc.End(ctx, call.CallID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusEnded, ended.Status)
	assert.Equal(t, 0, f.dyn.count(models.CallLocksTable))
}

func TestNonParticipantCannotAct(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	_, _, err = f.svc.Accept(ctx, call.CallID, "carol")
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
	_, err = f.svc.Decline(ctx, call.CallID, "carol")
	assert.Equal(t, apperrors.KindAccessDenied, apperrors.KindOf(err))
}

func TestEndPendingCallRejected(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	_, err = f.svc.End(ctx, call.CallID, "alice")
	assert.Equal(t, apperrors.KindStateConflict, apperrors.KindOf(err))
}

func TestSweepEndsStalePendingCall(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)

	// Still ringing within the timeout: nothing to do.
	f.now = f.now.Add(10 * time.Second)
	expired, err := f.svc.SweepStaleCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	f.now = f.now.Add(DefaultRingTimeout)
	expired, err = f.svc.SweepStaleCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	swept, err := f.svc.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusEnded, swept.Status)
	assert.Zero(t, swept.Duration)
	assert.Equal(t, 0, f.dyn.count(models.CallLocksTable))

	// Answering the timed-out call is now a state conflict.
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	assert.Equal(t, apperrors.KindStateConflict, apperrors.KindOf(err))
}

func TestSweepLeavesActiveCallsAlone(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)
	_, _, err = f.svc.Accept(ctx, call.CallID, "bob")
	require.NoError(t, err)

	f.now = f.now.Add(DefaultRingTimeout * 2)
	expired, err := f.svc.SweepStaleCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	current, err := f.svc.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusActive, current.Status)
}

func TestGetCallHistory(t *testing.T) {
	f := newCallFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, "alice", "bob", models.CallTypeVideo)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, call.CallID, "bob")
	require.NoError(t, err)

	history, err := f.svc.GetCallHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.CallStatusDeclined, history[0].Status)

	history, err = f.svc.GetCallHistory(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, history)
}
