package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"
	"sparkd_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DefaultRingTimeout bounds how long a pending call may ring before the
// sweep auto-ends it.
const DefaultRingTimeout = 45 * time.Second

// DefaultProvisionTimeout bounds every room-provider call.
const DefaultProvisionTimeout = 5 * time.Second

// CallService drives the two-party call lifecycle:
// pending -> active -> ended, or pending -> declined. Every transition is
// a conditional write guarded on the previous status, so racing accept
// and decline resolve to exactly one winner; the loser sees a state
// conflict naming the current status. Per-pair serialization of initiate
// goes through a conditional put on the CallLocks table.
type CallService struct {
	Dynamo           DynamoAPI
	Rooms            RoomProvider
	Matches          Matcher
	Notifications    Notifier
	RT               RealtimeEmitter
	Clock            func() time.Time
	RingTimeout      time.Duration
	ProvisionTimeout time.Duration
}

func (vs *CallService) now() time.Time {
	if vs.Clock != nil {
		return vs.Clock()
	}
	return time.Now()
}

func (vs *CallService) ringTimeout() time.Duration {
	if vs.RingTimeout > 0 {
		return vs.RingTimeout
	}
	return DefaultRingTimeout
}

func (vs *CallService) provisionCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := vs.ProvisionTimeout
	if timeout <= 0 {
		timeout = DefaultProvisionTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Initiate starts a call between two matched users. The per-pair lock is
// taken before the room is provisioned; provisioning failure releases the
// lock and leaves no pending record behind.
func (vs *CallService) Initiate(ctx context.Context, initiatorID, recipientID, callType string) (*models.VideoCall, error) {
	if initiatorID == "" || recipientID == "" {
		return nil, apperrors.Validation("initiatorId and recipientId are required")
	}
	if initiatorID == recipientID {
		return nil, apperrors.Validation("cannot call yourself")
	}
	if callType != models.CallTypeVideo && callType != models.CallTypeVoice {
		return nil, apperrors.Validation("invalid call type: " + callType)
	}

	matched, err := vs.Matches.AreMatched(ctx, initiatorID, recipientID)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, apperrors.AccessDenied("users are not matched")
	}

	pairKey := models.PairKey(initiatorID, recipientID)
	callID := uuid.NewString()
	now := vs.now().UTC().Format(time.RFC3339)

	lock := models.CallLock{PairKey: pairKey, CallID: callID, CreatedAt: now}
	err = vs.Dynamo.PutItemIfNotExists(ctx, models.CallLocksTable, lock, "pairKey")
	if errors.Is(err, ErrConditionFailed) {
		return nil, apperrors.StateConflict("a call for this pair is already in progress", vs.lockedCallStatus(ctx, pairKey))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take call lock: %w", err)
	}

	pctx, cancel := vs.provisionCtx(ctx)
	roomURL, err := vs.Rooms.CreateRoom(pctx, callID, []string{initiatorID, recipientID})
	cancel()
	if err != nil {
		vs.releaseLock(ctx, pairKey)
		if apperrors.KindOf(err) == apperrors.KindUpstreamFailure {
			return nil, err
		}
		return nil, apperrors.Upstream("room provisioning failed", err)
	}

	call := &models.VideoCall{
		CallID:       callID,
		PairKey:      pairKey,
		InitiatorID:  initiatorID,
		Participants: []string{initiatorID, recipientID},
		CallType:     callType,
		Status:       models.CallStatusPending,
		RoomURL:      roomURL,
		StartTime:    now, // optimistic, overwritten on accept
		CreatedAt:    now,
	}
	if err := vs.Dynamo.PutItem(ctx, models.VideoCallsTable, call); err != nil {
		vs.releaseLock(ctx, pairKey)
		vs.teardownRoom(ctx, callID)
		return nil, fmt.Errorf("failed to store call record: %w", err)
	}

	log.Printf("📞 Call %s initiated by %s -> %s (%s)", callID, initiatorID, recipientID, callType)
	vs.notifyTransition(ctx, call, recipientID, initiatorID, models.NotificationCallInitiate, models.EventCallInitiate)
	return call, nil
}

// Accept transitions a pending call to active and returns an access token
// scoped to this call and user. Accepting in any other status is a state
// conflict naming the current status.
func (vs *CallService) Accept(ctx context.Context, callID, userID string) (*models.VideoCall, string, error) {
	call, err := vs.GetCall(ctx, callID)
	if err != nil {
		return nil, "", err
	}
	if !call.HasParticipant(userID) {
		return nil, "", apperrors.AccessDenied("not a participant of this call")
	}
	if call.Status != models.CallStatusPending {
		return nil, "", apperrors.StateConflict("cannot accept call", call.Status)
	}

	// Token first: a failure here aborts before any state changes.
	pctx, cancel := vs.provisionCtx(ctx)
	token, err := vs.Rooms.IssueToken(pctx, callID, userID)
	cancel()
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUpstreamFailure {
			return nil, "", err
		}
		return nil, "", apperrors.Upstream("token issuance failed", err)
	}

	updated := *call
	updated.Status = models.CallStatusActive
	updated.StartTime = vs.now().UTC().Format(time.RFC3339)

	if err := vs.transition(ctx, &updated, models.CallStatusPending); err != nil {
		return nil, "", err
	}

	log.Printf("✅ Call %s accepted by %s", callID, userID)
	vs.notifyTransition(ctx, &updated, updated.OtherParticipant(userID), userID, models.NotificationCallAccept, models.EventCallAccept)
	return &updated, token, nil
}

// Decline rejects a pending call. The room is torn down best-effort and
// the initiator is notified.
func (vs *CallService) Decline(ctx context.Context, callID, userID string) (*models.VideoCall, error) {
	call, err := vs.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.HasParticipant(userID) {
		return nil, apperrors.AccessDenied("not a participant of this call")
	}
	if call.Status != models.CallStatusPending {
		return nil, apperrors.StateConflict("cannot decline call", call.Status)
	}

	updated := *call
	updated.Status = models.CallStatusDeclined
	updated.EndTime = vs.now().UTC().Format(time.RFC3339)
	updated.Duration = 0

	if err := vs.transition(ctx, &updated, models.CallStatusPending); err != nil {
		return nil, err
	}

	vs.releaseLock(ctx, call.PairKey)
	vs.teardownRoom(ctx, callID)

	log.Printf("🚫 Call %s declined by %s", callID, userID)
	vs.notifyTransition(ctx, &updated, updated.OtherParticipant(userID), userID, models.NotificationCallDecline, models.EventCallDecline)
	return &updated, nil
}

// End finishes an active call and computes its duration in whole seconds.
// Ending a pending call is a decline, not an end.
func (vs *CallService) End(ctx context.Context, callID, userID string) (*models.VideoCall, error) {
	call, err := vs.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.HasParticipant(userID) {
		return nil, apperrors.AccessDenied("not a participant of this call")
	}
	if call.Status != models.CallStatusActive {
		return nil, apperrors.StateConflict("cannot end call", call.Status)
	}

	endTime := vs.now()
	updated := *call
	updated.Status = models.CallStatusEnded
	updated.EndTime = endTime.UTC().Format(time.RFC3339)
	updated.Duration = 0
	if start, err := time.Parse(time.RFC3339, call.StartTime); err == nil {
		updated.Duration = int64(endTime.Sub(start).Seconds())
	}

	if err := vs.transition(ctx, &updated, models.CallStatusActive); err != nil {
		return nil, err
	}

	vs.releaseLock(ctx, call.PairKey)
	vs.teardownRoom(ctx, callID)

	log.Printf("📴 Call %s ended by %s after %ds", callID, userID, updated.Duration)
	vs.notifyTransition(ctx, &updated, updated.OtherParticipant(userID), userID, models.NotificationCallEnd, models.EventCallEnd)
	return &updated, nil
}

// GetCall loads a call record by id.
func (vs *CallService) GetCall(ctx context.Context, callID string) (*models.VideoCall, error) {
	if callID == "" {
		return nil, apperrors.Validation("callId is required")
	}
	key := map[string]types.AttributeValue{
		"callId": &types.AttributeValueMemberS{Value: callID},
	}
	item, err := vs.Dynamo.GetItem(ctx, models.VideoCallsTable, key)
	if errors.Is(err, ErrItemNotFound) {
		return nil, apperrors.NotFound("call not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call: %w", err)
	}

	var call models.VideoCall
	if err := attributevalue.UnmarshalMap(item, &call); err != nil {
		return nil, fmt.Errorf("failed to parse call: %w", err)
	}
	return &call, nil
}

// GetCallHistory lists every call the user took part in, newest first.
func (vs *CallService) GetCallHistory(ctx context.Context, userID string) ([]models.VideoCall, error) {
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}

	var calls []models.VideoCall
	err := vs.Dynamo.ScanWithFilter(ctx, models.VideoCallsTable, func(item map[string]types.AttributeValue) bool {
		for _, p := range utils.ExtractStringList(item, "participants") {
			if p == userID {
				return true
			}
		}
		return false
	}, &calls)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch call history: %w", err)
	}
	return calls, nil
}

// SweepStaleCalls auto-ends pending calls that have been ringing past the
// ring timeout. Acting on such a call afterwards is a state conflict.
func (vs *CallService) SweepStaleCalls(ctx context.Context) (int, error) {
	cutoff := vs.now().Add(-vs.ringTimeout()).UTC().Format(time.RFC3339)

	var locks []models.CallLock
	err := vs.Dynamo.ScanWithFilter(ctx, models.CallLocksTable, func(item map[string]types.AttributeValue) bool {
		return utils.ExtractString(item, "createdAt") < cutoff
	}, &locks)
	if err != nil {
		return 0, fmt.Errorf("failed to scan call locks: %w", err)
	}

	expired := 0
	for _, lock := range locks {
		call, err := vs.GetCall(ctx, lock.CallID)
		if err != nil {
			log.Printf("❌ Stale lock %s points at unloadable call %s: %v", lock.PairKey, lock.CallID, err)
			continue
		}
		if call.Status != models.CallStatusPending {
			continue // active calls ring no more; terminal ones release their own lock
		}

		updated := *call
		updated.Status = models.CallStatusEnded
		updated.EndTime = vs.now().UTC().Format(time.RFC3339)
		updated.Duration = 0

		if err := vs.transition(ctx, &updated, models.CallStatusPending); err != nil {
			// Lost to a real accept/decline racing the sweep.
			continue
		}

		vs.releaseLock(ctx, call.PairKey)
		vs.teardownRoom(ctx, call.CallID)
		log.Printf("⏱️ Call %s timed out ringing", call.CallID)
		for _, participant := range call.Participants {
			vs.notifyTransition(ctx, &updated, participant, "", models.NotificationCallEnd, models.EventCallEnd)
		}
		expired++
	}
	return expired, nil
}

// RunSweeper expires stale pending calls on an interval until ctx ends.
func (vs *CallService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := vs.SweepStaleCalls(ctx); err != nil {
				log.Printf("❌ Call sweep failed: %v", err)
			}
		}
	}
}

// transition writes the updated record guarded on the previous status.
// This is the atomic compare-and-set that makes racing transitions
// mutually exclusive.
func (vs *CallService) transition(ctx context.Context, updated *models.VideoCall, prevStatus string) error {
	err := vs.Dynamo.PutItemWithCondition(ctx, models.VideoCallsTable, updated,
		"#s = :prev",
		map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: prevStatus},
		},
		map[string]string{"#s": "status"})
	if errors.Is(err, ErrConditionFailed) {
		current, readErr := vs.GetCall(ctx, updated.CallID)
		if readErr != nil {
			return apperrors.StateConflict("call changed state concurrently", "unknown")
		}
		return apperrors.StateConflict("call changed state concurrently", current.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to transition call %s: %w", updated.CallID, err)
	}
	return nil
}

func (vs *CallService) lockedCallStatus(ctx context.Context, pairKey string) string {
	key := map[string]types.AttributeValue{
		"pairKey": &types.AttributeValueMemberS{Value: pairKey},
	}
	item, err := vs.Dynamo.GetItem(ctx, models.CallLocksTable, key)
	if err != nil {
		return models.CallStatusPending
	}
	var lock models.CallLock
	if err := attributevalue.UnmarshalMap(item, &lock); err != nil {
		return models.CallStatusPending
	}
	if call, err := vs.GetCall(ctx, lock.CallID); err == nil {
		return call.Status
	}
	return models.CallStatusPending
}

func (vs *CallService) releaseLock(ctx context.Context, pairKey string) {
	key := map[string]types.AttributeValue{
		"pairKey": &types.AttributeValueMemberS{Value: pairKey},
	}
	if err := vs.Dynamo.DeleteItem(ctx, models.CallLocksTable, key); err != nil {
		log.Printf("❌ Failed to release call lock %s: %v", pairKey, err)
	}
}

// teardownRoom is best-effort: a provider outage must not block a
// terminal transition.
func (vs *CallService) teardownRoom(ctx context.Context, callID string) {
	pctx, cancel := vs.provisionCtx(ctx)
	defer cancel()
	if err := vs.Rooms.DeleteRoom(pctx, callID); err != nil {
		log.Printf("❌ Room teardown for call %s failed: %v", callID, err)
	}
}

// notifyTransition informs the non-acting participant of the new status
// and pushes the typed call event to the call room.
func (vs *CallService) notifyTransition(ctx context.Context, call *models.VideoCall, to, actor, notifType, event string) {
	payload := map[string]interface{}{
		"callId":   call.CallID,
		"status":   call.Status,
		"actor":    actor,
		"callType": call.CallType,
		"roomUrl":  call.RoomURL,
	}
	if vs.Notifications != nil && to != "" {
		if _, err := vs.Notifications.Notify(ctx, to, notifType, payload, actor); err != nil {
			log.Printf("❌ Failed to notify %s about call %s: %v", to, call.CallID, err)
		}
	}
	if vs.RT != nil {
		vs.RT.BroadcastToRoom("/", CallRoom(call.CallID), event, payload)
	}
}
