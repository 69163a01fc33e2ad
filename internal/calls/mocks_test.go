package calls_test

import (
	"sync"
	"time"

	"peerbay/backend/internal/models"
	"peerbay/backend/internal/storage"

	"github.com/redis/go-redis/v9"
)

// stubStore is a hand-written storage.Storage double. The call manager only
// touches the call-history methods; everything else is a no-op.
type stubStore struct {
	mu     sync.Mutex
	saved  []*models.CallHistoryRecord
	purged []time.Time
}

func (s *stubStore) SaveCallRecord(rec *models.CallHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return nil
}

func (s *stubStore) savedRecords() []*models.CallHistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CallHistoryRecord, len(s.saved))
	copy(out, s.saved)
	return out
}

func (s *stubStore) PurgeCallRecords(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = append(s.purged, before)
	return 0, nil
}

func (s *stubStore) ListCallRecords(userID string, since time.Time) ([]models.CallHistoryRecord, error) {
	return nil, nil
}

func (s *stubStore) SaveUser(user *models.User) error                  { return nil }
func (s *stubStore) GetUserByID(userID string) (*models.User, error)   { return nil, nil }
func (s *stubStore) UpdateUser(user *models.User) error                { return nil }
func (s *stubStore) TouchLastActivity(conversationID string) error     { return nil }
func (s *stubStore) IncrementUnread(conversationID, userID string) error { return nil }
func (s *stubStore) ResetUnread(conversationID, userID string) error   { return nil }
func (s *stubStore) CreateMessage(msg *models.Message) error           { return nil }
func (s *stubStore) MarkDelivered(messageID string) error              { return nil }
func (s *stubStore) MarkRead(messageID string) error                   { return nil }
func (s *stubStore) SoftDeleteMessage(messageID string) error          { return nil }
func (s *stubStore) SetBlocked(blockerID, blockedID string, blocked bool) error { return nil }
func (s *stubStore) CanReceiveFrom(recipientID, senderID string) (bool, error) { return true, nil }
func (s *stubStore) PublishEvent(ev models.Event) error                { return nil }
func (s *stubStore) SubscribeEvents() *redis.PubSub                    { return nil }

func (s *stubStore) FindOrCreateConversation(userA, userB string) (*models.Conversation, bool, error) {
	return nil, false, nil
}

func (s *stubStore) GetConversationByID(conversationID string) (*models.Conversation, error) {
	return nil, nil
}

func (s *stubStore) ListConversationsForUser(userID string) ([]models.Conversation, error) {
	return nil, nil
}

func (s *stubStore) GetMessageByID(messageID string) (*models.Message, error) {
	return nil, nil
}

func (s *stubStore) ListMessages(conversationID string, page, pageSize int) ([]models.Message, error) {
	return nil, nil
}

var _ storage.Storage = (*stubStore)(nil)

// fakePusher records pushed events per user and answers presence from a
// configurable online set.
type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	pushed map[string][]models.Event
}

func newFakePusher(onlineUsers ...string) *fakePusher {
	online := make(map[string]bool)
	for _, id := range onlineUsers {
		online[id] = true
	}
	return &fakePusher{online: online, pushed: make(map[string][]models.Event)}
}

func (p *fakePusher) PushToUser(userID string, ev models.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[userID] = append(p.pushed[userID], ev)
	return p.online[userID]
}

func (p *fakePusher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePusher) setOnline(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
}

func (p *fakePusher) eventsFor(userID string) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Event, len(p.pushed[userID]))
	copy(out, p.pushed[userID])
	return out
}

func (p *fakePusher) lastEventFor(userID string) (models.Event, bool) {
	evs := p.eventsFor(userID)
	if len(evs) == 0 {
		return models.Event{}, false
	}
	return evs[len(evs)-1], true
}

func (p *fakePusher) typesFor(userID string) []string {
	var types []string
	for _, ev := range p.eventsFor(userID) {
		types = append(types, ev.Type)
	}
	return types
}
