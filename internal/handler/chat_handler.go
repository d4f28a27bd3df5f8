// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dejny-gpt-go/internal/service"
	"dejny-gpt-go/pkg/log"
)

// ChatHandler 处理会话与消息相关的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// PostMessageRequest 定义了发送消息 API 的请求体结构。
// message 与 imageUrl 均可缺省，两者都缺省时仅以已有历史调用模型。
type PostMessageRequest struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
}

// ListConversations 返回按创建时间倒序的会话列表，每项附带预览文本。
func (h *ChatHandler) ListConversations(c *gin.Context) {
	items, err := h.chatService.ListConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// CreateConversation 创建一个空会话并返回其 ID。
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	id, err := h.chatService.CreateConversation(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": id})
}

// GetHistory 返回指定会话按创建时间升序的消息历史。
func (h *ChatHandler) GetHistory(c *gin.Context) {
	conversationID := c.Param("id")
	history, err := h.chatService.GetHistory(c.Request.Context(), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

// PostMessage 追加一条用户消息并返回模型回复。
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	result, err := h.chatService.PostMessage(c.Request.Context(), c.Param("id"), req.Message, req.ImageURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteConversation 删除会话及其全部消息，删除不存在的会话同样返回成功。
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chatService.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeError 将业务错误分类映射为 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数无效"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
	case errors.Is(err, service.ErrUpstream):
		log.Error("模型服务调用失败", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI服务暂时不可用，请稍后重试"})
	default:
		log.Error("服务器内部错误", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
