// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dejny-gpt-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for an LLM client.
type Client interface {
	// ChatCompletion 以完整的有序消息列表调用聊天接口，返回一条 assistant 回复。
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
	// GenerateImage 调用图片生成接口，返回生成图片的 URL。
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type openaiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client for an OpenAI-compatible API.
func NewClient(cfg config.LLMConfig) Client {
	return &openaiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// ChatCompletion calls the chat completions endpoint with the full message history.
func (c *openaiClient) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage calls the image generation endpoint and returns the first image URL.
func (c *openaiClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	size := c.cfg.ImageSize
	if size == "" {
		size = "512x512"
	}
	reqBody := imageRequest{Prompt: prompt, Size: size, N: 1}

	var resp imageResponse
	if err := c.post(ctx, "/images/generations", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.New("image api returned no image")
	}
	return resp.Data[0].URL, nil
}

// post 发送 JSON 请求并解析 JSON 响应，非 2xx 状态码视为上游错误。
func (c *openaiClient) post(ctx context.Context, path string, in, out interface{}) error {
	reqBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call llm api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llm api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode llm response: %w", err)
	}
	return nil
}
