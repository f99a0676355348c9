package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeKeySchema mirrors the key attributes of each table so the fake can
// address items the way DynamoDB would.
var fakeKeySchema = map[string][]string{
	models.UsersTable:         {"userId"},
	models.SubscriptionsTable: {"userId"},
	models.MatchesTable:       {"pairKey"},
	models.ConversationsTable: {"pairKey"},
	models.MessagesTable:      {"conversationId", "messageId"},
	models.VideoCallsTable:    {"callId"},
	models.CallLocksTable:     {"pairKey"},
	models.NotificationsTable: {"userId", "notificationId"},
}

// fakeDynamo is an in-memory DynamoAPI. Conditional writes evaluate the
// same expression shapes the services emit, so the compare-and-set
// behavior under test matches the real store's.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) compositeKey(tableName string, item map[string]types.AttributeValue) string {
	parts := make([]string, 0, 2)
	for _, attr := range fakeKeySchema[tableName] {
		if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
			parts = append(parts, s.Value)
		}
	}
	return strings.Join(parts, "|")
}

func (f *fakeDynamo) count(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(tableName))
}

func (f *fakeDynamo) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.table(tableName)[f.compositeKey(tableName, key)]
	if !ok {
		return nil, ErrItemNotFound
	}
	return item, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, tableName string, item interface{}) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(tableName)[f.compositeKey(tableName, marshaled)] = marshaled
	return nil
}

func (f *fakeDynamo) PutItemIfNotExists(ctx context.Context, tableName string, item interface{}, keyAttr string) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(tableName)
	key := f.compositeKey(tableName, marshaled)
	if _, exists := t[key]; exists {
		return ErrConditionFailed
	}
	t[key] = marshaled
	return nil
}

func (f *fakeDynamo) PutItemWithCondition(ctx context.Context, tableName string, item interface{}, condition string, values map[string]types.AttributeValue, names map[string]string) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(tableName)
	key := f.compositeKey(tableName, marshaled)
	if !evalCondition(t[key], condition, values, names) {
		return ErrConditionFailed
	}
	t[key] = marshaled
	return nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table(tableName), f.compositeKey(tableName, key))
	return nil
}

func (f *fakeDynamo) QueryItems(ctx context.Context, tableName string, keyConditionExpression string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	return f.queryEqual(tableName, keyConditionExpression, values, names, limit)
}

func (f *fakeDynamo) QueryItemsWithIndex(ctx context.Context, tableName, indexName, keyConditionExpression string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	return f.queryEqual(tableName, keyConditionExpression, values, names, limit)
}

// queryEqual handles the single-equality key conditions the services use,
// e.g. "conversationId = :cid".
func (f *fakeDynamo) queryEqual(tableName, expr string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	parts := strings.SplitN(expr, " = ", 2)
	if len(parts) != 2 {
		return nil, errors.New("unsupported key condition: " + expr)
	}
	attr := strings.TrimSpace(parts[0])
	if resolved, ok := names[attr]; ok {
		attr = resolved
	}
	want := values[strings.TrimSpace(parts[1])]

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.table(tableName) {
		if attrEqual(item[attr], want) {
			out = append(out, item)
			if limit > 0 && int32(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) ScanWithFilter(ctx context.Context, tableName string, filterFunc func(map[string]types.AttributeValue) bool, result interface{}) error {
	f.mu.Lock()
	var matched []map[string]types.AttributeValue
	for _, item := range f.table(tableName) {
		if filterFunc(item) {
			matched = append(matched, item)
		}
	}
	f.mu.Unlock()
	return attributevalue.UnmarshalListOfMaps(matched, result)
}

func (f *fakeDynamo) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(tableName)
	for _, req := range writeRequests {
		if req.DeleteRequest != nil {
			delete(t, f.compositeKey(tableName, req.DeleteRequest.Key))
		}
		if req.PutRequest != nil {
			t[f.compositeKey(tableName, req.PutRequest.Item)] = req.PutRequest.Item
		}
	}
	return nil
}

// evalCondition evaluates AND-joined clauses of the two forms the
// services write: "attribute_not_exists(attr)" and "attr = :val".
func evalCondition(existing map[string]types.AttributeValue, condition string, values map[string]types.AttributeValue, names map[string]string) bool {
	for _, clause := range strings.Split(condition, " AND ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "attribute_not_exists(") {
			attr := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
			if existing != nil {
				if _, ok := existing[attr]; ok {
					return false
				}
			}
			continue
		}
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			return false
		}
		attr := strings.TrimSpace(parts[0])
		if resolved, ok := names[attr]; ok {
			attr = resolved
		}
		if existing == nil {
			return false
		}
		if !attrEqual(existing[attr], values[strings.TrimSpace(parts[1])]) {
			return false
		}
	}
	return true
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
}

// fakeEmitter records broadcasts instead of pushing to sockets.
type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	Room  string
	Event string
	Args  []interface{}
}

func (e *fakeEmitter) BroadcastToRoom(namespace, room, event string, args ...interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emittedEvent{Room: room, Event: event, Args: args})
	return true
}

func (e *fakeEmitter) eventsFor(room string) []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emittedEvent
	for _, ev := range e.events {
		if ev.Room == room {
			out = append(out, ev)
		}
	}
	return out
}

// fakeNotifier records durable notification requests.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

type sentNotification struct {
	UserID string
	Type   string
	From   string
}

func (n *fakeNotifier) Notify(ctx context.Context, userID, notifType string, payload map[string]interface{}, fromUserID string) (*models.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Type: notifType, From: fromUserID})
	return &models.Notification{UserID: userID, Type: notifType, FromUserID: fromUserID}, nil
}

func (n *fakeNotifier) sentTo(userID string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// fakeMatcher answers AreMatched from a fixed set of pairs.
type fakeMatcher struct {
	pairs map[string]bool
}

func newFakeMatcher(pairs ...[2]string) *fakeMatcher {
	m := &fakeMatcher{pairs: make(map[string]bool)}
	for _, p := range pairs {
		m.pairs[models.PairKey(p[0], p[1])] = true
	}
	return m
}

func (m *fakeMatcher) AreMatched(ctx context.Context, a, b string) (bool, error) {
	return m.pairs[models.PairKey(a, b)], nil
}

// fakePresence reports a fixed online set.
type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) IsOnline(userID string) bool {
	return p.online[userID]
}

// fakeRooms is a RoomProvider that can be told to fail each operation.
type fakeRooms struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	tokenErr  error
	created   []string
	deleted   []string
}

func (r *fakeRooms) CreateRoom(ctx context.Context, callID string, participantIDs []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.created = append(r.created, callID)
	return "https://rooms.example.com/" + callID, nil
}

func (r *fakeRooms) DeleteRoom(ctx context.Context, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, callID)
	return nil
}

func (r *fakeRooms) IssueToken(ctx context.Context, callID, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokenErr != nil {
		return "", r.tokenErr
	}
	return "token-" + callID + "-" + userID, nil
}
