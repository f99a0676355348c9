package services

import (
	"context"
	"log"
	"sync"
	"time"

	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultHeartbeatWindow is how long a connection may stay silent before
// the reaper treats it as vanished.
const DefaultHeartbeatWindow = 90 * time.Second

// PresenceService tracks which users have live socket connections. A user
// is online while their connection refcount is above zero, so multiple
// tabs or devices never flap the status. Status writes and broadcasts only
// happen on the 0->1 and 1->0 transitions, and never while the lock is
// held.
type PresenceService struct {
	Dynamo          DynamoAPI
	RT              RealtimeEmitter
	Clock           func() time.Time
	HeartbeatWindow time.Duration

	mu       sync.Mutex
	conns    map[string]string    // connID -> userID
	refs     map[string]int       // userID -> live connection count
	lastBeat map[string]time.Time // connID -> last heartbeat
}

func NewPresenceService(dynamo DynamoAPI, rt RealtimeEmitter) *PresenceService {
	return &PresenceService{
		Dynamo:          dynamo,
		RT:              rt,
		HeartbeatWindow: DefaultHeartbeatWindow,
		conns:           make(map[string]string),
		refs:            make(map[string]int),
		lastBeat:        make(map[string]time.Time),
	}
}

func (ps *PresenceService) now() time.Time {
	if ps.Clock != nil {
		return ps.Clock()
	}
	return time.Now()
}

// Connect registers a live connection for the user. Returns true when this
// was the user's first connection (offline -> online transition).
func (ps *PresenceService) Connect(ctx context.Context, userID, connID string) bool {
	ps.mu.Lock()
	ps.conns[connID] = userID
	ps.lastBeat[connID] = ps.now()
	ps.refs[userID]++
	wentOnline := ps.refs[userID] == 1
	ps.mu.Unlock()

	if wentOnline {
		ps.setStatus(ctx, userID, true)
	}
	return wentOnline
}

// Disconnect drops a connection. Unknown connection ids are a no-op, which
// covers double-disconnects from abrupt close plus reaper overlap. Returns
// true when the user's last connection closed.
func (ps *PresenceService) Disconnect(ctx context.Context, connID string) bool {
	ps.mu.Lock()
	userID, ok := ps.conns[connID]
	if !ok {
		ps.mu.Unlock()
		return false
	}
	delete(ps.conns, connID)
	delete(ps.lastBeat, connID)
	ps.refs[userID]--
	wentOffline := ps.refs[userID] <= 0
	if wentOffline {
		delete(ps.refs, userID)
	}
	ps.mu.Unlock()

	if wentOffline {
		ps.setStatus(ctx, userID, false)
	}
	return wentOffline
}

// Heartbeat records liveness for a connection.
func (ps *PresenceService) Heartbeat(connID string) {
	ps.mu.Lock()
	if _, ok := ps.conns[connID]; ok {
		ps.lastBeat[connID] = ps.now()
	}
	ps.mu.Unlock()
}

// IsOnline reports whether the user has at least one live connection.
func (ps *PresenceService) IsOnline(userID string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.refs[userID] > 0
}

// ReapStale disconnects every connection that has not heartbeated within
// the liveness window. Covers connections that vanished without a close.
func (ps *PresenceService) ReapStale(ctx context.Context) int {
	cutoff := ps.now().Add(-ps.HeartbeatWindow)

	ps.mu.Lock()
	var stale []string
	for connID, beat := range ps.lastBeat {
		if beat.Before(cutoff) {
			stale = append(stale, connID)
		}
	}
	ps.mu.Unlock()

	for _, connID := range stale {
		log.Printf("💀 Reaping silent connection %s", connID)
		ps.Disconnect(ctx, connID)
	}
	return len(stale)
}

// RunReaper periodically reaps stale connections until ctx is cancelled.
func (ps *PresenceService) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.ReapStale(ctx)
		}
	}
}

// setStatus persists the online flag and lastSeen, then broadcasts the
// transition to the user's subscribers. Store failure is logged only: the
// in-memory registry is the source of truth for delivery decisions.
func (ps *PresenceService) setStatus(ctx context.Context, userID string, online bool) {
	lastSeen := ps.now().UTC().Format(time.RFC3339)

	user := &models.User{UserID: userID}
	key := map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
	if item, err := ps.Dynamo.GetItem(ctx, models.UsersTable, key); err == nil {
		if err := attributevalue.UnmarshalMap(item, user); err != nil {
			log.Printf("❌ Failed to unmarshal user %s: %v", userID, err)
		}
	}
	user.IsOnline = online
	user.LastSeen = lastSeen
	if err := ps.Dynamo.PutItem(ctx, models.UsersTable, user); err != nil {
		log.Printf("❌ Failed to persist presence for %s: %v", userID, err)
	}

	event := models.EventPresenceOffline
	if online {
		event = models.EventPresenceOnline
	}
	if ps.RT != nil {
		ps.RT.BroadcastToRoom("/", UserRoom(userID), event, map[string]interface{}{
			"userId":   userID,
			"isOnline": online,
			"lastSeen": lastSeen,
		})
	}
	log.Printf("👤 Presence: %s is now online=%v", userID, online)
}
