package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func unmarshalSubscription(item map[string]types.AttributeValue) (*models.Subscription, error) {
	var sub models.Subscription
	if err := attributevalue.UnmarshalMap(item, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return &sub, nil
}

// ResetHint is the human-readable reset time returned with quota
// rejections. Every gated feature resets on the day boundary.
const ResetHint = "tomorrow"

// QuotaService is the daily usage ledger every gated feature action passes
// through. Counters are only meaningful relative to lastResetDate, so every
// read path runs the stale-day reset first; both the reset and the
// increment are conditional writes so concurrent gates for the same user
// cannot double-spend a stale window.
type QuotaService struct {
	Dynamo DynamoAPI
	Clock  func() time.Time // nil means time.Now
}

func (qs *QuotaService) now() time.Time {
	if qs.Clock != nil {
		return qs.Clock()
	}
	return time.Now()
}

func (qs *QuotaService) today() string {
	return qs.now().UTC().Format("2006-01-02")
}

func validFeature(feature string) bool {
	switch feature {
	case models.FeatureVideoCalls, models.FeatureVoiceCalls, models.FeatureLikes,
		models.FeatureSuperLikes, models.FeatureMessages:
		return true
	}
	return false
}

// GetSubscription returns the user's subscription with counters already
// reset for the current day. A user without one is lazily put on the free
// plan.
func (qs *QuotaService) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}

	key := map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
	item, err := qs.Dynamo.GetItem(ctx, models.SubscriptionsTable, key)
	if errors.Is(err, ErrItemNotFound) {
		sub := qs.defaultSubscription(userID)
		if err := qs.Dynamo.PutItemIfNotExists(ctx, models.SubscriptionsTable, sub, "userId"); err != nil && !errors.Is(err, ErrConditionFailed) {
			return nil, fmt.Errorf("failed to create subscription for %s: %w", userID, err)
		}
		// Re-read so a concurrent creator's row wins.
		item, err = qs.Dynamo.GetItem(ctx, models.SubscriptionsTable, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription for %s: %w", userID, err)
	}

	sub, err := unmarshalSubscription(item)
	if err != nil {
		return nil, err
	}
	return qs.ensureFresh(ctx, sub)
}

func (qs *QuotaService) defaultSubscription(userID string) *models.Subscription {
	sub := &models.Subscription{UserID: userID, LastResetDate: qs.today()}
	sub.ApplyPlan(models.PlanFree)
	return sub
}

// ensureFresh resets stale counters at the day boundary. The write is
// guarded on the previous lastResetDate; losing that race means another
// gate already reset, so we re-read instead of resetting twice.
func (qs *QuotaService) ensureFresh(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	today := qs.today()
	if sub.LastResetDate == today {
		return sub, nil
	}

	log.Printf("🔄 Quota day boundary for %s: %s -> %s, resetting counters", sub.UserID, sub.LastResetDate, today)

	fresh := *sub
	fresh.ResetCounters(today)

	err := qs.Dynamo.PutItemWithCondition(ctx, models.SubscriptionsTable, &fresh,
		"lastResetDate = :prev",
		map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: sub.LastResetDate},
		}, nil)
	if errors.Is(err, ErrConditionFailed) {
		item, err := qs.Dynamo.GetItem(ctx, models.SubscriptionsTable, map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: sub.UserID},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to re-read subscription for %s: %w", sub.UserID, err)
		}
		return unmarshalSubscription(item)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset counters for %s: %w", sub.UserID, err)
	}
	return &fresh, nil
}

// CheckLimit is the gate: true when the feature is still allowed today.
func (qs *QuotaService) CheckLimit(ctx context.Context, userID, feature string) (bool, error) {
	if !validFeature(feature) {
		return false, apperrors.Validation("unknown feature: " + feature)
	}

	sub, err := qs.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}

	limit, _ := sub.Limit(feature)
	if limit == models.UnlimitedSentinel {
		return true, nil
	}
	used, _ := sub.Used(feature)
	return used < limit, nil
}

// Remaining returns today's leftover allowance, or the unlimited sentinel.
func (qs *QuotaService) Remaining(ctx context.Context, userID, feature string) (int, error) {
	if !validFeature(feature) {
		return 0, apperrors.Validation("unknown feature: " + feature)
	}

	sub, err := qs.GetSubscription(ctx, userID)
	if err != nil {
		return 0, err
	}

	limit, _ := sub.Limit(feature)
	if limit == models.UnlimitedSentinel {
		return models.UnlimitedSentinel, nil
	}
	used, _ := sub.Used(feature)
	if used >= limit {
		return 0, nil
	}
	return limit - used, nil
}

// Increment records one confirmed use of a feature. Only ever called after
// the gated action succeeded; callers log failures instead of rolling the
// action back. The write is guarded on the previous counter value and the
// current day so a concurrent increment or reset forces a retry.
func (qs *QuotaService) Increment(ctx context.Context, userID, feature string) error {
	if !validFeature(feature) {
		return apperrors.Validation("unknown feature: " + feature)
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sub, err := qs.GetSubscription(ctx, userID)
		if err != nil {
			return err
		}

		prevUsed, _ := sub.Used(feature)
		updated := *sub
		updated.AddUsed(feature)

		err = qs.Dynamo.PutItemWithCondition(ctx, models.SubscriptionsTable, &updated,
			"#f = :prevUsed AND lastResetDate = :day",
			map[string]types.AttributeValue{
				":prevUsed": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", prevUsed)},
				":day":      &types.AttributeValueMemberS{Value: sub.LastResetDate},
			},
			map[string]string{"#f": feature + "Used"})
		if errors.Is(err, ErrConditionFailed) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to increment %s for %s: %w", feature, userID, err)
		}
		return nil
	}
	return fmt.Errorf("increment of %s for %s kept losing the write race", feature, userID)
}

// ChangePlan swaps the per-feature limits from the plan table in one write,
// preserving in-progress usage counters.
func (qs *QuotaService) ChangePlan(ctx context.Context, userID, plan string) (*models.Subscription, error) {
	if _, ok := models.PlanTable[plan]; !ok {
		return nil, apperrors.Validation("unknown plan: " + plan)
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sub, err := qs.GetSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}

		updated := *sub
		updated.ApplyPlan(plan)

		err = qs.Dynamo.PutItemWithCondition(ctx, models.SubscriptionsTable, &updated,
			"lastResetDate = :day",
			map[string]types.AttributeValue{
				":day": &types.AttributeValueMemberS{Value: sub.LastResetDate},
			}, nil)
		if errors.Is(err, ErrConditionFailed) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to change plan for %s: %w", userID, err)
		}
		log.Printf("✅ Plan for %s changed to %s", userID, plan)
		return &updated, nil
	}
	return nil, fmt.Errorf("plan change for %s kept losing the write race", userID)
}

// QuotaExceededError builds the gate rejection for a feature, carrying the
// remaining allowance and the reset hint.
func (qs *QuotaService) QuotaExceededError(ctx context.Context, userID, feature string) error {
	remaining, err := qs.Remaining(ctx, userID, feature)
	if err != nil {
		remaining = 0
	}
	return apperrors.QuotaExceeded(feature, remaining, ResetHint)
}
