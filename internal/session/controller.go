// Package session 实现客户端的会话状态机：
// 跟踪当前会话、消息列表与回复生成状态，并协调对服务端接口的调用。
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/pkg/log"
)

// ErrComposing 表示上一次提交的回复尚未返回，本次提交被拒绝。
// 互斥由控制器自身保证，不依赖界面禁用按钮。
var ErrComposing = errors.New("assistant is composing, submit rejected")

// Status 是本地消息的确认状态标记。
// 乐观追加的消息先处于 Pending，请求成功后转为 Confirmed，失败转为 Failed。
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusFailed
)

// Message 是控制器维护的一条本地消息。
type Message struct {
	Role    string
	Content string
	IsImage bool
	Status  Status
}

// Backend 抽象了控制器依赖的服务端操作，便于在测试中替换。
type Backend interface {
	ListConversations(ctx context.Context) ([]model.ConversationItem, error)
	CreateConversation(ctx context.Context) (string, error)
	GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	PostMessage(ctx context.Context, conversationID, text, imageURL string) (string, string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	UploadImage(ctx context.Context, fileName string, file io.Reader) (string, error)
}

// Controller 是客户端会话状态机。
// 方法可以被多个 goroutine 并发调用，内部状态由互斥锁保护；
// 网络往返在锁外进行，结果落地前校验代次令牌，过期响应直接丢弃。
type Controller struct {
	backend Backend

	mu            sync.Mutex
	conversations []model.ConversationItem
	activeID      string
	messages      []Message
	draft         string
	composing     bool
	// generation 在每次切换会话时递增，用于丢弃迟到的历史响应。
	generation uint64
}

// NewController 创建一个新的会话控制器。
func NewController(backend Backend) *Controller {
	return &Controller{backend: backend}
}

// Refresh 重新加载会话列表。
func (c *Controller) Refresh(ctx context.Context) error {
	items, err := c.backend.ListConversations(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conversations = items
	c.mu.Unlock()
	return nil
}

// SelectConversation 切换当前会话并加载其历史。
// id 为空表示进入未保存的新会话状态。切换后到达的旧会话历史响应按代次丢弃。
func (c *Controller) SelectConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.activeID = id
	c.messages = nil
	c.mu.Unlock()

	if id == "" {
		return nil
	}

	history, err := c.backend.GetHistory(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// 用户已经切换到别的会话，丢弃这份过期历史。
		return nil
	}
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, Message{
			Role:    m.Role,
			Content: m.Content,
			IsImage: looksLikeImageURL(m.Content),
			Status:  StatusConfirmed,
		})
	}
	c.messages = msgs
	return nil
}

// SubmitText 发送一条文本消息并等待模型回复。
// 空白内容是 no-op；回复尚未返回时再次提交返回 ErrComposing。
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.submit(ctx, text, "", false)
}

// SubmitImage 上传图片后以其 URL 发起一次对话回合。
func (c *Controller) SubmitImage(ctx context.Context, fileName string, file io.Reader) error {
	c.mu.Lock()
	if c.composing {
		c.mu.Unlock()
		return ErrComposing
	}
	c.composing = true
	c.mu.Unlock()

	imageURL, err := c.backend.UploadImage(ctx, fileName, file)
	if err != nil {
		c.mu.Lock()
		c.composing = false
		c.mu.Unlock()
		return err
	}

	return c.finishSubmit(ctx, "", imageURL, true)
}

// SubmitDraft 提交当前草稿，成功后清空草稿。
func (c *Controller) SubmitDraft(ctx context.Context) error {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	if err := c.SubmitText(ctx, draft); err != nil {
		return err
	}
	c.mu.Lock()
	c.draft = ""
	c.mu.Unlock()
	return nil
}

// submit 获取 composing 互斥后执行一次对话回合。
func (c *Controller) submit(ctx context.Context, text, imageURL string, isImage bool) error {
	c.mu.Lock()
	if c.composing {
		c.mu.Unlock()
		return ErrComposing
	}
	c.composing = true
	c.mu.Unlock()

	return c.finishSubmit(ctx, text, imageURL, isImage)
}

// finishSubmit 在已持有 composing 标志的前提下完成乐观追加、网络调用与状态回写。
func (c *Controller) finishSubmit(ctx context.Context, text, imageURL string, isImage bool) error {
	content := text
	if isImage {
		content = imageURL
	}

	// 乐观追加：本地先显示用户消息，状态为 Pending。
	c.mu.Lock()
	gen := c.generation
	activeID := c.activeID
	pendingIndex := len(c.messages)
	c.messages = append(c.messages, Message{
		Role:    model.RoleUser,
		Content: content,
		IsImage: isImage,
		Status:  StatusPending,
	})
	c.mu.Unlock()

	convID, reply, err := c.backend.PostMessage(ctx, activeID, text, imageURL)

	c.mu.Lock()
	c.composing = false
	if c.generation != gen {
		// 提交期间用户切换了会话，本地消息列表已被替换，不再回写。
		c.mu.Unlock()
		return err
	}
	if err != nil {
		if pendingIndex < len(c.messages) {
			c.messages[pendingIndex].Status = StatusFailed
		}
		c.mu.Unlock()
		return err
	}

	if pendingIndex < len(c.messages) {
		c.messages[pendingIndex].Status = StatusConfirmed
	}
	created := c.activeID == ""
	c.activeID = convID
	c.messages = append(c.messages, Message{
		Role:    model.RoleAssistant,
		Content: reply,
		IsImage: looksLikeImageURL(reply),
		Status:  StatusConfirmed,
	})
	c.mu.Unlock()

	if created {
		// 新会话出现在列表里，刷新失败不影响本次回合。
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			log.Warnf("刷新会话列表失败: %v", refreshErr)
		}
	}
	return nil
}

// NewConversation 创建一个新会话并切换过去。
func (c *Controller) NewConversation(ctx context.Context) (string, error) {
	id, err := c.backend.CreateConversation(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.generation++
	c.activeID = id
	c.messages = nil
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		log.Warnf("刷新会话列表失败: %v", err)
	}
	return id, nil
}

// DeleteConversation 乐观地从本地列表移除会话后请求服务端删除。
// 删除请求失败时不回滚本地状态，只记录日志。
func (c *Controller) DeleteConversation(ctx context.Context, id string) {
	c.mu.Lock()
	filtered := c.conversations[:0]
	for _, item := range c.conversations {
		if item.ID != id {
			filtered = append(filtered, item)
		}
	}
	c.conversations = filtered
	if c.activeID == id {
		c.generation++
		c.activeID = ""
		c.messages = nil
	}
	c.mu.Unlock()

	if err := c.backend.DeleteConversation(ctx, id); err != nil {
		log.Warnf("删除会话请求失败: %v", err)
	}
}

// SetDraft 更新输入框草稿。
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Draft 返回当前草稿。
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// ActiveID 返回当前会话 ID，空串表示未保存的新会话。
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// IsComposing 报告是否有回复尚在生成中。
func (c *Controller) IsComposing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composing
}

// Messages 返回当前消息列表的副本。
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Conversations 返回会话列表的副本。
func (c *Controller) Conversations() []model.ConversationItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ConversationItem, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// looksLikeImageURL 判断内容是否是一个图片链接，仅用于展示分类。
func looksLikeImageURL(content string) bool {
	if !strings.HasPrefix(content, "http://") && !strings.HasPrefix(content, "https://") {
		return false
	}
	lower := strings.ToLower(content)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
