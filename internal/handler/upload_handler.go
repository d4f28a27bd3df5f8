package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dejny-gpt-go/internal/service"
)

// UploadHandler 负责处理文件上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理图片上传请求，表单字段名为 image。
// 超过大小上限的文件直接拒绝，内容类型不做校验。
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未能获取上传的文件"})
		return
	}
	defer file.Close()

	if header.Size > h.uploadService.MaxFileSize() {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "文件大小超过上限"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	url, err := h.uploadService.UploadImage(c.Request.Context(), header.Filename, header.Size, file, contentType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
