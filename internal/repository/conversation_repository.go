// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/pkg/log"
)

const (
	// conversationListKey 是会话列表（含预览）在 Redis 中的缓存键。
	conversationListKey = "conversation:list"
	// conversationListTTL 控制列表缓存的存活时间，任何写操作都会使其失效。
	conversationListTTL = 30 * time.Second
)

// ConversationRepository 定义了会话与消息的持久化操作接口。
type ConversationRepository interface {
	CreateConversation(ctx context.Context) (*model.Conversation, error)
	FindConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.ConversationItem, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	DeleteConversation(ctx context.Context, id string) error
}

// conversationRepository 是 ConversationRepository 接口的 GORM+Redis 实现。
// Redis 仅作为会话列表的只读缓存，数据源始终是数据库。
type conversationRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
// redisClient 可以为 nil，此时列表缓存被禁用。
func NewConversationRepository(db *gorm.DB, redisClient *redis.Client) ConversationRepository {
	return &conversationRepository{db: db, redisClient: redisClient}
}

// CreateConversation 创建一个不含任何消息的新会话。
func (r *conversationRepository) CreateConversation(ctx context.Context) (*model.Conversation, error) {
	conv := &model.Conversation{ID: uuid.NewString()}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	r.invalidateListCache(ctx)
	return conv, nil
}

// FindConversation 根据 ID 查找会话，不存在时返回 gorm.ErrRecordNotFound。
func (r *conversationRepository) FindConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations 按创建时间倒序返回所有会话，预览取各自最近一条消息。
func (r *conversationRepository) ListConversations(ctx context.Context) ([]model.ConversationItem, error) {
	if items, ok := r.listFromCache(ctx); ok {
		return items, nil
	}

	var convs []model.Conversation
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}

	items := make([]model.ConversationItem, 0, len(convs))
	for _, conv := range convs {
		preview := model.PreviewPlaceholder
		var latest []model.Message
		err := r.db.WithContext(ctx).
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return nil, fmt.Errorf("查询会话最新消息失败: %w", err)
		}
		if len(latest) > 0 {
			preview = latest[0].Content
		}
		items = append(items, model.ConversationItem{
			ID:        conv.ID,
			Preview:   preview,
			CreatedAt: conv.CreatedAt,
		})
	}

	r.storeListCache(ctx, items)
	return items, nil
}

// ListMessages 按创建时间升序返回指定会话的全部消息。
// created_at 相同时以自增主键保证稳定顺序。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话历史失败: %w", err)
	}
	return msgs, nil
}

// CreateMessage 向会话追加一条消息。消息只增不改。
func (r *conversationRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	r.invalidateListCache(ctx)
	return nil
}

// DeleteConversation 先删除会话下的所有消息，再删除会话本身。
// 对不存在的 ID 调用不是错误，保证幂等。
func (r *conversationRepository) DeleteConversation(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Conversation{}).Error
	})
	if err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	r.invalidateListCache(ctx)
	return nil
}

// listFromCache 尝试从 Redis 读取会话列表缓存。
func (r *conversationRepository) listFromCache(ctx context.Context) ([]model.ConversationItem, bool) {
	if r.redisClient == nil {
		return nil, false
	}
	jsonData, err := r.redisClient.Get(ctx, conversationListKey).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warnf("读取会话列表缓存失败: %v", err)
		return nil, false
	}
	var items []model.ConversationItem
	if err := json.Unmarshal([]byte(jsonData), &items); err != nil {
		return nil, false
	}
	return items, true
}

// storeListCache 将会话列表写入 Redis，缓存失败只记录日志不影响主流程。
func (r *conversationRepository) storeListCache(ctx context.Context, items []model.ConversationItem) {
	if r.redisClient == nil {
		return
	}
	jsonData, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := r.redisClient.Set(ctx, conversationListKey, jsonData, conversationListTTL).Err(); err != nil {
		log.Warnf("写入会话列表缓存失败: %v", err)
	}
}

// invalidateListCache 在任何写操作之后删除列表缓存。
func (r *conversationRepository) invalidateListCache(ctx context.Context) {
	if r.redisClient == nil {
		return
	}
	if err := r.redisClient.Del(ctx, conversationListKey).Err(); err != nil {
		log.Warnf("删除会话列表缓存失败: %v", err)
	}
}
