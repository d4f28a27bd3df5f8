package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/internal/repository"
	"dejny-gpt-go/internal/service"
	"dejny-gpt-go/pkg/database"
	"dejny-gpt-go/pkg/llm"
)

type stubLLMClient struct {
	reply    string
	imageURL string
	err      error
}

func (s *stubLLMClient) ChatCompletion(_ context.Context, _ []llm.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLMClient) GenerateImage(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.imageURL, nil
}

func setupRouter(t *testing.T, client *stubLLMClient) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	repo := repository.NewConversationRepository(db, nil)
	chatService := service.NewChatService(repo, client)
	chatHandler := NewChatHandler(chatService)
	imageHandler := NewImageHandler(chatService)

	r := gin.New()
	apiV1 := r.Group("/api/v1")
	{
		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("", chatHandler.ListConversations)
			conversations.POST("", chatHandler.CreateConversation)
			conversations.GET("/:id", chatHandler.GetHistory)
			conversations.POST("/:id", chatHandler.PostMessage)
			conversations.DELETE("/:id", chatHandler.DeleteConversation)
		}
		apiV1.POST("/images", imageHandler.Generate)
	}
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("序列化请求失败: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConversationLifecycle(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{reply: "hi!"})

	// 创建会话
	w := doJSON(t, r, http.MethodPost, "/api/v1/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("创建会话期望 200, 得到 %d", w.Code)
	}
	var created struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if created.ChatID == "" {
		t.Fatal("应返回新会话 ID")
	}

	// 发送消息
	w = doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+created.ChatID, map[string]string{"message": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("发送消息期望 200, 得到 %d, body=%s", w.Code, w.Body.String())
	}
	var posted struct {
		ChatID string `json:"chatId"`
		Reply  string `json:"reply"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &posted); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if posted.Reply != "hi!" {
		t.Errorf("期望回复 'hi!', 得到 %q", posted.Reply)
	}

	// 查询历史
	w = doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+created.ChatID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("查询历史期望 200, 得到 %d", w.Code)
	}
	var history struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("期望 2 条消息, 得到 %d", len(history.Messages))
	}
	if history.Messages[0].Role != model.RoleUser || history.Messages[1].Role != model.RoleAssistant {
		t.Errorf("历史顺序不正确: %+v", history.Messages)
	}

	// 会话列表预览为最新消息
	w = doJSON(t, r, http.MethodGet, "/api/v1/conversations", nil)
	var items []model.ConversationItem
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(items) != 1 || items[0].Preview != "hi!" {
		t.Errorf("期望预览 'hi!', 得到 %+v", items)
	}

	// 删除两次都返回成功
	for i := 0; i < 2; i++ {
		w = doJSON(t, r, http.MethodDelete, "/api/v1/conversations/"+created.ChatID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次删除期望 200, 得到 %d", i+1, w.Code)
		}
		var resp struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.Success {
			t.Fatalf("删除应返回 success=true, body=%s", w.Body.String())
		}
	}
}

func TestPostMessageUpstreamError(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{err: errors.New("boom")})

	w := doJSON(t, r, http.MethodPost, "/api/v1/conversations/some-id", map[string]string{"message": "hello"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("模型失败期望 502, 得到 %d", w.Code)
	}
}

func TestPostMessageInvalidBody(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{reply: "x"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/some-id", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("非法请求体期望 400, 得到 %d", w.Code)
	}
}

func TestGetHistoryAbsentConversation(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{})

	w := doJSON(t, r, http.MethodGet, "/api/v1/conversations/missing", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", w.Code)
	}
	var history struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(history.Messages) != 0 {
		t.Errorf("不存在的会话应返回空历史, 得到 %d 条", len(history.Messages))
	}
}

func TestGenerateImage(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{imageURL: "http://img.local/out.png"})

	// 缺少 prompt
	w := doJSON(t, r, http.MethodPost, "/api/v1/images", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少 prompt 期望 400, 得到 %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/images", map[string]string{"prompt": "a cat"})
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", w.Code)
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.URL == "" {
		t.Fatalf("应返回图片 URL, body=%s", w.Body.String())
	}
}
