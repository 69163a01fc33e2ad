package chathub_test

import (
	"sync"
	"time"

	"peerbay/backend/internal/chathub"
	"peerbay/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a comprehensive mock implementation of the storage.Storage
// interface. It uses testify/mock to allow flexible expectation setting in
// tests.
type MockStorage struct {
	mock.Mock
}

// User operations
func (m *MockStorage) SaveUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) UpdateUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

// Conversation operations
func (m *MockStorage) FindOrCreateConversation(userA, userB string) (*models.Conversation, bool, error) {
	args := m.Called(userA, userB)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockStorage) GetConversationByID(conversationID string) (*models.Conversation, error) {
	args := m.Called(conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) ListConversationsForUser(userID string) ([]models.Conversation, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStorage) TouchLastActivity(conversationID string) error {
	args := m.Called(conversationID)
	return args.Error(0)
}

func (m *MockStorage) IncrementUnread(conversationID, userID string) error {
	args := m.Called(conversationID, userID)
	return args.Error(0)
}

func (m *MockStorage) ResetUnread(conversationID, userID string) error {
	args := m.Called(conversationID, userID)
	return args.Error(0)
}

// Message operations
func (m *MockStorage) CreateMessage(msg *models.Message) error {
	args := m.Called(msg)
	if msg.ID == "" {
		msg.ID = "msg-generated"
	}
	msg.CreatedAt = time.Now()
	return args.Error(0)
}

func (m *MockStorage) GetMessageByID(messageID string) (*models.Message, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkDelivered(messageID string) error {
	args := m.Called(messageID)
	return args.Error(0)
}

func (m *MockStorage) MarkRead(messageID string) error {
	args := m.Called(messageID)
	return args.Error(0)
}

func (m *MockStorage) SoftDeleteMessage(messageID string) error {
	args := m.Called(messageID)
	return args.Error(0)
}

func (m *MockStorage) ListMessages(conversationID string, page, pageSize int) ([]models.Message, error) {
	args := m.Called(conversationID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// Permission policy
func (m *MockStorage) CanReceiveFrom(recipientID, senderID string) (bool, error) {
	args := m.Called(recipientID, senderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SetBlocked(blockerID, blockedID string, blocked bool) error {
	args := m.Called(blockerID, blockedID, blocked)
	return args.Error(0)
}

// Call history
func (m *MockStorage) SaveCallRecord(rec *models.CallHistoryRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStorage) ListCallRecords(userID string, since time.Time) ([]models.CallHistoryRecord, error) {
	args := m.Called(userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CallHistoryRecord), args.Error(1)
}

func (m *MockStorage) PurgeCallRecords(before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

// Event fan-out
func (m *MockStorage) PublishEvent(ev models.Event) error {
	args := m.Called(ev)
	return args.Error(0)
}

func (m *MockStorage) SubscribeEvents() *redis.PubSub {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*redis.PubSub)
}

// MockClient is a test double for the chathub.Client interface. Like the real
// client it guards the closed flag and the channel close with one mutex, so
// concurrent TrySend/Close from test goroutines behave like production.
type MockClient struct {
	userID string
	connID string

	mu     sync.Mutex
	send   chan models.Event
	closed bool
}

func newMockClient(userID, connID string) *MockClient {
	return &MockClient{
		userID: userID,
		connID: connID,
		send:   make(chan models.Event, 32), // Buffered to prevent blocking in tests
	}
}

func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) GetConnID() string { return c.connID }
func (c *MockClient) Run()              {}

func (c *MockClient) TrySend(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *MockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainEvents empties the send channel and returns what was queued.
func (c *MockClient) DrainEvents() []models.Event {
	var events []models.Event
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// fakePusher is a lightweight chathub.EventPusher capturing pushed events per
// user, with a configurable online set. Used where the full hub would be
// overkill.
type fakePusher struct {
	online map[string]bool
	pushed map[string][]models.Event
	fanout []models.Event
}

func newFakePusher(onlineUsers ...string) *fakePusher {
	online := make(map[string]bool)
	for _, id := range onlineUsers {
		online[id] = true
	}
	return &fakePusher{online: online, pushed: make(map[string][]models.Event)}
}

func (p *fakePusher) PushToUser(userID string, ev models.Event) bool {
	p.pushed[userID] = append(p.pushed[userID], ev)
	return p.online[userID]
}

func (p *fakePusher) IsOnline(userID string) bool { return p.online[userID] }

func (p *fakePusher) Fanout(ev models.Event) { p.fanout = append(p.fanout, ev) }

func (p *fakePusher) eventsFor(userID string) []models.Event { return p.pushed[userID] }

func (p *fakePusher) lastEventFor(userID string) (models.Event, bool) {
	evs := p.pushed[userID]
	if len(evs) == 0 {
		return models.Event{}, false
	}
	return evs[len(evs)-1], true
}

var _ chathub.EventPusher = (*fakePusher)(nil)
var _ chathub.Client = (*MockClient)(nil)
