// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色常量。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PreviewPlaceholder 是空会话在列表中展示的占位预览文本。
const PreviewPlaceholder = "New Chat"

// Conversation 代表一个会话线程，消息按创建时间有序挂载其下。
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 代表会话中的一条消息，role 为 user 或 assistant。
// 消息一旦写入不可修改，仅随会话级删除级联移除。
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"size:36;index;not null" json:"conversationId"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// ChatMessage 是对外返回历史时使用的消息视图。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationItem 是会话列表中的一项，preview 为最近一条消息的内容。
type ConversationItem struct {
	ID        string    `json:"id"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
}
