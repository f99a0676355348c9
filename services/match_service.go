package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MatchUndoGraceWindow is how long after a swipe the actor may undo it.
const MatchUndoGraceWindow = 5 * time.Minute

// Notifier is the slice of the notification fan-out the domain services
// call into.
type Notifier interface {
	Notify(ctx context.Context, userID, notifType string, payload map[string]interface{}, fromUserID string) (*models.Notification, error)
}

// MatchService owns the pair-unique swipe records. Writes serialize per
// pair through conditional puts: creation races collapse onto one record
// via the pairKey condition, updates are guarded on the previous
// updatedAt and retried.
type MatchService struct {
	Dynamo        DynamoAPI
	Notifications Notifier
	Clock         func() time.Time
}

func (ms *MatchService) now() time.Time {
	if ms.Clock != nil {
		return ms.Clock()
	}
	return time.Now()
}

// DeriveMatchState is the one place match state comes from: a pair is
// matched iff both action slots hold a like or super_like.
func DeriveMatchState(actionA, actionB string) bool {
	positive := func(a string) bool {
		return a == models.ActionLike || a == models.ActionSuperLike
	}
	return positive(actionA) && positive(actionB)
}

func validSwipeAction(action string) bool {
	switch action {
	case models.ActionLike, models.ActionSuperLike, models.ActionPass:
		return true
	}
	return false
}

// Swipe records the actor's action toward the target and rederives the
// match state. Returns the updated record.
func (ms *MatchService) Swipe(ctx context.Context, actorID, targetID, action string) (*models.Match, error) {
	if actorID == "" || targetID == "" {
		return nil, apperrors.Validation("actorId and targetId are required")
	}
	if actorID == targetID {
		return nil, apperrors.Validation("cannot swipe on yourself")
	}
	if !validSwipeAction(action) {
		return nil, apperrors.Validation("invalid swipe action: " + action)
	}

	pairKey := models.PairKey(actorID, targetID)
	now := ms.now().UTC().Format(time.RFC3339)

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		existing, err := ms.getByPairKey(ctx, pairKey)
		if err != nil && apperrors.KindOf(err) != apperrors.KindNotFound {
			return nil, err
		}

		if existing == nil {
			match := ms.newMatch(actorID, targetID, action, now)
			err := ms.Dynamo.PutItemIfNotExists(ctx, models.MatchesTable, match, "pairKey")
			if errors.Is(err, ErrConditionFailed) {
				continue // concurrent first swipe for this pair won, re-read
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create match record: %w", err)
			}
			log.Printf("✅ First swipe recorded: %s -> %s (%s)", actorID, targetID, action)
			return match, nil
		}

		current, _ := existing.Slot(actorID)
		if current == action {
			return nil, apperrors.StateConflict("already swiped with this action", current)
		}

		updated := *existing
		ms.setSlot(&updated, actorID, action, now)

		wasMatch := existing.IsMatch
		updated.IsMatch = DeriveMatchState(updated.ActionA, updated.ActionB)
		if !wasMatch && updated.IsMatch {
			updated.MatchedAt = now
		}
		if wasMatch && !updated.IsMatch {
			updated.MatchedAt = ""
		}
		updated.UpdatedAt = now

		err = ms.putGuarded(ctx, &updated, existing.UpdatedAt)
		if errors.Is(err, ErrConditionFailed) {
			continue // concurrent swipe on the same pair, re-read and retry
		}
		if err != nil {
			return nil, err
		}

		if !wasMatch && updated.IsMatch {
			log.Printf("🎉 Match formed: %s and %s", updated.UserA, updated.UserB)
			ms.notifyBoth(ctx, &updated, models.NotificationNewMatch)
		}
		return &updated, nil
	}
	return nil, apperrors.StateConflict("swipe kept losing the write race for this pair", "contended")
}

// Undo reverts the actor's most recent swipe within the grace window. If
// the swipe had formed a match, the other party gets an explicit
// match_revoked notification rather than a silent disappearance.
func (ms *MatchService) Undo(ctx context.Context, actorID, targetID string) (*models.Match, error) {
	if actorID == "" || targetID == "" {
		return nil, apperrors.Validation("actorId and targetId are required")
	}

	pairKey := models.PairKey(actorID, targetID)
	existing, err := ms.getByPairKey(ctx, pairKey)
	if err != nil {
		return nil, err
	}

	current, ok := existing.Slot(actorID)
	if !ok {
		return nil, apperrors.AccessDenied("not a participant of this pair")
	}
	if current == models.ActionPending {
		return nil, apperrors.StateConflict("nothing to undo", current)
	}

	swipedAt := existing.SwipedAtA
	if actorID == existing.UserB {
		swipedAt = existing.SwipedAtB
	}
	if t, err := time.Parse(time.RFC3339, swipedAt); err != nil || ms.now().Sub(t) > MatchUndoGraceWindow {
		return nil, apperrors.StateConflict("undo grace window has elapsed", current)
	}

	now := ms.now().UTC().Format(time.RFC3339)
	updated := *existing
	ms.setSlot(&updated, actorID, models.ActionPending, "")

	wasMatch := existing.IsMatch
	updated.IsMatch = DeriveMatchState(updated.ActionA, updated.ActionB)
	if wasMatch && !updated.IsMatch {
		updated.MatchedAt = ""
	}
	updated.UpdatedAt = now

	if err := ms.putGuarded(ctx, &updated, existing.UpdatedAt); err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return nil, apperrors.StateConflict("pair changed while undoing", "contended")
		}
		return nil, err
	}

	if wasMatch && !updated.IsMatch {
		other := updated.OtherUser(actorID)
		if ms.Notifications != nil {
			if _, err := ms.Notifications.Notify(ctx, other, models.NotificationMatchRevoked, map[string]interface{}{
				"withUser": actorID,
			}, actorID); err != nil {
				log.Printf("❌ Failed to notify %s of revoked match: %v", other, err)
			}
		}
	}
	return &updated, nil
}

// AreMatched reports whether the unordered pair is currently matched.
// Used as the precondition for call initiation and first messages.
func (ms *MatchService) AreMatched(ctx context.Context, a, b string) (bool, error) {
	match, err := ms.getByPairKey(ctx, models.PairKey(a, b))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return match.IsMatch, nil
}

// GetMatchesForUser lists the user's current matches.
func (ms *MatchService) GetMatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}

	var matches []models.Match
	err := ms.Dynamo.ScanWithFilter(ctx, models.MatchesTable, func(item map[string]types.AttributeValue) bool {
		pairKeyAttr, ok := item["pairKey"].(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		isMatchAttr, ok := item["isMatch"].(*types.AttributeValueMemberBOOL)
		if !ok || !isMatchAttr.Value {
			return false
		}
		parts := strings.SplitN(pairKeyAttr.Value, "#", 2)
		return len(parts) == 2 && (parts[0] == userID || parts[1] == userID)
	}, &matches)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch matches for %s: %w", userID, err)
	}
	return matches, nil
}

func (ms *MatchService) getByPairKey(ctx context.Context, pairKey string) (*models.Match, error) {
	key := map[string]types.AttributeValue{
		"pairKey": &types.AttributeValueMemberS{Value: pairKey},
	}
	item, err := ms.Dynamo.GetItem(ctx, models.MatchesTable, key)
	if errors.Is(err, ErrItemNotFound) {
		return nil, apperrors.NotFound("no match record for this pair")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match record: %w", err)
	}

	var match models.Match
	if err := attributevalue.UnmarshalMap(item, &match); err != nil {
		return nil, fmt.Errorf("failed to parse match record: %w", err)
	}
	return &match, nil
}

func (ms *MatchService) newMatch(actorID, targetID, action, now string) *models.Match {
	userA, userB := actorID, targetID
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	match := &models.Match{
		PairKey:   models.PairKey(actorID, targetID),
		UserA:     userA,
		UserB:     userB,
		ActionA:   models.ActionPending,
		ActionB:   models.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ms.setSlot(match, actorID, action, now)
	return match
}

func (ms *MatchService) setSlot(match *models.Match, userID, action, swipedAt string) {
	if userID == match.UserA {
		match.ActionA = action
		match.SwipedAtA = swipedAt
	} else {
		match.ActionB = action
		match.SwipedAtB = swipedAt
	}
}

// putGuarded writes the record conditioned on the previous updatedAt so
// two concurrent swipes on the same pair cannot both apply blindly.
func (ms *MatchService) putGuarded(ctx context.Context, match *models.Match, prevUpdatedAt string) error {
	err := ms.Dynamo.PutItemWithCondition(ctx, models.MatchesTable, match,
		"updatedAt = :prev",
		map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: prevUpdatedAt},
		}, nil)
	if err != nil && !errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("failed to update match record: %w", err)
	}
	return err
}

func (ms *MatchService) notifyBoth(ctx context.Context, match *models.Match, notifType string) {
	if ms.Notifications == nil {
		return
	}
	pairs := []struct{ to, from string }{
		{match.UserA, match.UserB},
		{match.UserB, match.UserA},
	}
	for _, p := range pairs {
		if _, err := ms.Notifications.Notify(ctx, p.to, notifType, map[string]interface{}{
			"withUser":  p.from,
			"matchedAt": match.MatchedAt,
		}, p.from); err != nil {
			log.Printf("❌ Failed to notify %s of %s: %v", p.to, notifType, err)
		}
	}
}
