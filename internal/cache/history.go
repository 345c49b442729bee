package cache

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

// MessageModel is the persisted shape of a chat message.
type MessageModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	RoomID    string    `gorm:"primaryKey;column:room_id;index"`
	SenderID  string    `gorm:"column:sender_id"`
	Content   string    `gorm:"column:content"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	Read      bool      `gorm:"column:read"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

func toModel(m domain.ChatMessage) MessageModel {
	return MessageModel{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Time,
		Read:      m.Read,
	}
}

func (m MessageModel) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: domain.Timestamp{Time: m.CreatedAt},
		Read:      m.Read,
	}
}

// HistoryCache stores fetched history pages in a local sqlite database so
// recent conversations stay readable offline. It is never consulted on the
// live message path.
type HistoryCache struct {
	db *gorm.DB
}

// Open creates (or opens) the cache database at path and migrates the
// schema.
func Open(path string) (*HistoryCache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history cache: %w", err)
	}

	if err := db.AutoMigrate(&MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history cache: %w", err)
	}

	return &HistoryCache{db: db}, nil
}

// SavePage upserts one fetched history page.
func (c *HistoryCache) SavePage(ctx context.Context, roomID string, msgs []domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	models := make([]MessageModel, 0, len(msgs))
	for _, m := range msgs {
		models = append(models, toModel(m))
	}

	result := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}, {Name: "room_id"}},
		UpdateAll: true,
	}).Create(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to cache history page")
		return result.Error
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Int("count", len(models)).Msg("history page cached")
	return nil
}

// RecentMessages reads up to limit cached messages for a room, newest
// first.
func (c *HistoryCache) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit < 1 {
		limit = 50
	}

	var models []MessageModel
	result := c.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

// Close releases the underlying database handle.
func (c *HistoryCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
