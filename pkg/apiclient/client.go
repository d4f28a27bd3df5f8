// Package apiclient 提供访问聊天服务 HTTP 接口的类型化客户端。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"dejny-gpt-go/internal/model"
)

// Client calls the chat service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError 表示服务端返回的错误响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// NewClient constructs a chat service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// ListConversations 获取按创建时间倒序的会话列表。
func (c *Client) ListConversations(ctx context.Context) ([]model.ConversationItem, error) {
	var items []model.ConversationItem
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateConversation 创建一个空会话并返回其 ID。
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var resp struct {
		ChatID string `json:"chatId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", nil, &resp); err != nil {
		return "", err
	}
	return resp.ChatID, nil
}

// GetHistory 获取指定会话按创建时间升序的消息历史。
func (c *Client) GetHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	var resp struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PostMessage 追加一条用户消息并等待模型回复，返回实际生效的会话 ID。
// conversationID 为空时先创建新会话再发送，避免空 ID 拼出的路径落到创建接口上。
func (c *Client) PostMessage(ctx context.Context, conversationID, text, imageURL string) (string, string, error) {
	if conversationID == "" {
		id, err := c.CreateConversation(ctx)
		if err != nil {
			return "", "", err
		}
		conversationID = id
	}

	payload := map[string]string{}
	if text != "" {
		payload["message"] = text
	}
	if imageURL != "" {
		payload["imageUrl"] = imageURL
	}

	var resp struct {
		ChatID string `json:"chatId"`
		Reply  string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID, payload, &resp); err != nil {
		return "", "", err
	}
	return resp.ChatID, resp.Reply, nil
}

// DeleteConversation 删除会话，对不存在的会话调用同样成功。
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/conversations/"+conversationID, nil, nil)
}

// UploadImage 以 multipart 形式上传图片，返回公开访问 URL。
func (c *Client) UploadImage(ctx context.Context, fileName string, file io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", fileName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/uploads", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// GenerateImage 请求服务端生成一张图片并返回其 URL。
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/images", map[string]string{"prompt": prompt}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// do 构造 JSON 请求并发送。
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send 执行请求并解析响应，4xx/5xx 转换为 *APIError。
func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
