package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"peerbay/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// eventsChannel is the Redis Pub/Sub channel realtime events are fanned out
// on, so every hub instance can deliver to its locally connected channels.
const eventsChannel = "realtime:events"

// blockCacheTTL bounds how long a permission verdict may be served from Redis
// before the blocks table is consulted again.
const blockCacheTTL = 10 * time.Minute

// Storage is the contract between the realtime core and the durable store.
// The core treats everything behind it as an external collaborator: the
// conversation/message schema belongs to the main application.
type Storage interface {
	// Users
	SaveUser(user *models.User) error
	GetUserByID(userID string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Conversations
	FindOrCreateConversation(userA, userB string) (*models.Conversation, bool, error)
	GetConversationByID(conversationID string) (*models.Conversation, error)
	ListConversationsForUser(userID string) ([]models.Conversation, error)
	TouchLastActivity(conversationID string) error
	IncrementUnread(conversationID, userID string) error
	ResetUnread(conversationID, userID string) error

	// Messages
	CreateMessage(msg *models.Message) error
	GetMessageByID(messageID string) (*models.Message, error)
	MarkDelivered(messageID string) error
	MarkRead(messageID string) error
	SoftDeleteMessage(messageID string) error
	ListMessages(conversationID string, page, pageSize int) ([]models.Message, error)

	// Messaging-permission policy
	CanReceiveFrom(recipientID, senderID string) (bool, error)
	SetBlocked(blockerID, blockedID string, blocked bool) error

	// Call history
	SaveCallRecord(rec *models.CallHistoryRecord) error
	ListCallRecords(userID string, since time.Time) ([]models.CallHistoryRecord, error)
	PurgeCallRecords(before time.Time) (int64, error)

	// Cross-instance event fan-out
	PublishEvent(ev models.Event) error
	SubscribeEvents() *redis.PubSub
}

// Service implements Storage on PostgreSQL (GORM) plus Redis for the
// pub/sub bridge and fast permission flags.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// --- Users ---

func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

func (s *Service) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// --- Conversations ---

// FindOrCreateConversation returns the existing two-party conversation for
// the pair in either order, creating one only when none exists. The second
// return value reports whether a new conversation was created.
func (s *Service) FindOrCreateConversation(userA, userB string) (*models.Conversation, bool, error) {
	var conv models.Conversation
	err := s.DB.
		Where("(user_a_id = ? AND user_b_id = ?) OR (user_a_id = ? AND user_b_id = ?)",
			userA, userB, userB, userA).
		First(&conv).Error
	if err == nil {
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv = models.Conversation{
		UserAID:      userA,
		UserBID:      userB,
		LastActivity: time.Now(),
	}
	if err := s.DB.Create(&conv).Error; err != nil {
		log.Printf("ERROR: Failed to create conversation for %s/%s: %v", userA, userB, err)
		return nil, false, err
	}
	return &conv, true, nil
}

func (s *Service) GetConversationByID(conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.First(&conv, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get conversation %s: %v", conversationID, err)
		return nil, err
	}
	return &conv, nil
}

func (s *Service) ListConversationsForUser(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.DB.
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_activity desc").
		Find(&convs).Error
	if err != nil {
		log.Printf("ERROR: Failed to list conversations for user %s: %v", userID, err)
		return nil, err
	}
	return convs, nil
}

func (s *Service) TouchLastActivity(conversationID string) error {
	return s.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_activity", time.Now()).Error
}

// IncrementUnread bumps the unread counter of the given participant.
func (s *Service) IncrementUnread(conversationID, userID string) error {
	return s.updateUnread(conversationID, userID, gorm.Expr("unread_a + 1"), gorm.Expr("unread_b + 1"))
}

// ResetUnread zeroes the unread counter of the given participant.
func (s *Service) ResetUnread(conversationID, userID string) error {
	return s.updateUnread(conversationID, userID, 0, 0)
}

func (s *Service) updateUnread(conversationID, userID string, valueA, valueB interface{}) error {
	conv, err := s.GetConversationByID(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.New("conversation not found")
	}

	column := "unread_a"
	value := valueA
	if conv.UserBID == userID {
		column = "unread_b"
		value = valueB
	} else if conv.UserAID != userID {
		return errors.New("user is not a participant")
	}

	return s.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update(column, value).Error
}

// --- Messages ---

func (s *Service) CreateMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for conversation %s: %v", msg.ConversationID, err)
		return err
	}
	return nil
}

func (s *Service) GetMessageByID(messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.DB.First(&msg, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Service) MarkDelivered(messageID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("delivered", true).Error
}

func (s *Service) MarkRead(messageID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{"read": true, "delivered": true}).Error
}

func (s *Service) SoftDeleteMessage(messageID string) error {
	return s.DB.Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("deleted", true).Error
}

// ListMessages loads one page of conversation history, newest page first,
// messages within the page in chronological order.
func (s *Service) ListMessages(conversationID string, page, pageSize int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	var msgs []models.Message
	err := s.DB.
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	if err != nil {
		log.Printf("ERROR: Failed to get messages for conversation %s: %v", conversationID, err)
		return nil, err
	}
	return msgs, nil
}

// --- Messaging-permission policy ---

func blockKey(blockerID, blockedID string) string {
	return "blocked:" + blockerID + ":" + blockedID
}

// CanReceiveFrom reports whether recipient accepts messages from sender.
// The verdict is cached in Redis; on a cache miss the blocks table decides
// and the result is cached for blockCacheTTL.
func (s *Service) CanReceiveFrom(recipientID, senderID string) (bool, error) {
	key := blockKey(recipientID, senderID)
	val, err := s.Redis.Get(s.Ctx, key).Result()
	if err == nil {
		return val != "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, err
	}

	var count int64
	if err := s.DB.Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", recipientID, senderID).
		Count(&count).Error; err != nil {
		return false, err
	}

	cached := "0"
	if count > 0 {
		cached = "1"
	}
	if err := s.Redis.Set(s.Ctx, key, cached, blockCacheTTL).Err(); err != nil {
		log.Printf("WARNING: Failed to cache block verdict %s: %v", key, err)
	}
	return count == 0, nil
}

// SetBlocked updates the durable block record and the Redis flag together.
func (s *Service) SetBlocked(blockerID, blockedID string, blocked bool) error {
	if blocked {
		block := models.Block{BlockerID: blockerID, BlockedID: blockedID}
		if err := s.DB.Where(&block).FirstOrCreate(&block).Error; err != nil {
			return err
		}
		return s.Redis.Set(s.Ctx, blockKey(blockerID, blockedID), "1", blockCacheTTL).Err()
	}

	if err := s.DB.
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{}).Error; err != nil {
		return err
	}
	return s.Redis.Del(s.Ctx, blockKey(blockerID, blockedID)).Err()
}

// --- Call history ---

func (s *Service) SaveCallRecord(rec *models.CallHistoryRecord) error {
	if err := s.DB.Save(rec).Error; err != nil {
		log.Printf("ERROR: Failed to save call record %s: %v", rec.CallID, err)
		return err
	}
	return nil
}

func (s *Service) ListCallRecords(userID string, since time.Time) ([]models.CallHistoryRecord, error) {
	var recs []models.CallHistoryRecord
	err := s.DB.
		Where("ended_at >= ?", since).
		Where("caller_id = ? OR callee_id = ?", userID, userID).
		Order("ended_at desc").
		Find(&recs).Error
	if err != nil {
		log.Printf("ERROR: Failed to list call records for user %s: %v", userID, err)
		return nil, err
	}
	return recs, nil
}

// PurgeCallRecords deletes records that ended before the cutoff and returns
// how many rows were removed.
func (s *Service) PurgeCallRecords(before time.Time) (int64, error) {
	res := s.DB.Where("ended_at < ?", before).Delete(&models.CallHistoryRecord{})
	if res.Error != nil {
		log.Printf("ERROR: Failed to purge call records: %v", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// --- Event fan-out ---

// PublishEvent pushes an event onto the shared Redis channel so sibling hub
// instances can deliver it to their local clients.
func (s *Service) PublishEvent(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, eventsChannel, string(data)).Err()
}

// SubscribeEvents subscribes to the shared event channel.
func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, eventsChannel)
}
