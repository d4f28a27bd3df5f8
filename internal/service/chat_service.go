package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/internal/repository"
	"dejny-gpt-go/pkg/llm"
	"dejny-gpt-go/pkg/log"
)

// PostMessageResult 是一次对话回合的结果。
type PostMessageResult struct {
	ConversationID string `json:"chatId"`
	Reply          string `json:"reply"`
}

// ChatService 定义了会话生命周期与消息追加协议的业务接口。
type ChatService interface {
	ListConversations(ctx context.Context) ([]model.ConversationItem, error)
	CreateConversation(ctx context.Context) (string, error)
	GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	PostMessage(ctx context.Context, conversationID, text, imageURL string) (*PostMessageResult, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type chatService struct {
	conversationRepo repository.ConversationRepository
	llmClient        llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(conversationRepo repository.ConversationRepository, llmClient llm.Client) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		llmClient:        llmClient,
	}
}

// ListConversations 按创建时间倒序返回会话列表，预览为各会话最近一条消息。
func (s *chatService) ListConversations(ctx context.Context) ([]model.ConversationItem, error) {
	items, err := s.conversationRepo.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return items, nil
}

// CreateConversation 创建一个空会话并返回其 ID。
func (s *chatService) CreateConversation(ctx context.Context) (string, error) {
	conv, err := s.conversationRepo.CreateConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return conv.ID, nil
}

// GetHistory 返回指定会话按创建时间升序的消息历史。
// 会话不存在时返回空列表而不是错误，与原有行为保持一致。
func (s *chatService) GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	msgs, err := s.conversationRepo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	history := make([]model.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, model.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// PostMessage 执行一次完整的对话回合：
// 先持久化用户消息，再以持久化后的完整历史调用模型服务，最后保存回复。
// 发送给模型的内容始终等于数据库中的有序历史，不额外拼接尾部消息。
func (s *chatService) PostMessage(ctx context.Context, conversationID, text, imageURL string) (*PostMessageResult, error) {
	conv, err := s.ensureConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// 1. 追加用户消息：文本优先，其次是图片引用；两者都缺省时不产生空消息。
	content := strings.TrimSpace(text)
	if content == "" {
		content = strings.TrimSpace(imageURL)
	}
	if content != "" {
		userMsg := &model.Message{
			ConversationID: conv.ID,
			Role:           model.RoleUser,
			Content:        content,
		}
		if err := s.conversationRepo.CreateMessage(ctx, userMsg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
		}
	}

	// 2. 重新读取完整历史，保证发送内容包含刚写入的用户消息。
	msgs, err := s.conversationRepo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	llmMsgs := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	// 3. 调用模型服务。失败时已持久化的用户消息保留，不写入任何回复。
	reply, err := s.llmClient.ChatCompletion(ctx, llmMsgs)
	if err != nil {
		log.Errorf("模型服务调用失败: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	// 4. 持久化 assistant 回复。
	assistantMsg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        reply,
	}
	if err := s.conversationRepo.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}

	return &PostMessageResult{ConversationID: conv.ID, Reply: reply}, nil
}

// DeleteConversation 删除会话及其全部消息，对不存在的 ID 调用同样成功。
func (s *chatService) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.conversationRepo.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return nil
}

// GenerateImage 将图片生成请求透传给模型服务，返回生成图片的 URL。
func (s *chatService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt 不能为空", ErrValidation)
	}
	url, err := s.llmClient.GenerateImage(ctx, prompt)
	if err != nil {
		log.Errorf("图片生成失败: %v", err)
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return url, nil
}

// ensureConversation 查找目标会话；ID 为空或会话不存在时创建一个新会话。
func (s *chatService) ensureConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID != "" {
		conv, err := s.conversationRepo.FindConversation(ctx, conversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
		}
	}
	conv, err := s.conversationRepo.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return conv, nil
}
