package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dejny-gpt-go/internal/service"
)

// ImageHandler 处理图片生成的 API 请求。
type ImageHandler struct {
	chatService service.ChatService
}

// NewImageHandler 创建一个新的 ImageHandler。
func NewImageHandler(chatService service.ChatService) *ImageHandler {
	return &ImageHandler{chatService: chatService}
}

// GenerateImageRequest 定义了图片生成 API 的请求体结构。
type GenerateImageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// Generate 将图片生成请求透传给模型服务，返回生成图片的 URL。
func (h *ImageHandler) Generate(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	url, err := h.chatService.GenerateImage(c.Request.Context(), req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
