// Package view 将会话控制器的状态渲染为纯文本。
// 这里只做无状态的格式化，不发起任何网络或存储操作。
package view

import (
	"fmt"
	"strings"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/internal/session"
)

const (
	// previewWidth 是会话列表中预览文本的最大显示宽度（按 rune 计）。
	previewWidth = 40
	// bubbleWidth 控制消息气泡的缩进宽度，用户消息靠右显示。
	bubbleWidth = 72
)

// RenderMessages 渲染消息列表：用户消息靠右，assistant 靠左，
// 图片消息带 [image] 标记，未确认/失败的消息带状态批注。
func RenderMessages(messages []session.Message, composing bool) string {
	var b strings.Builder
	for _, m := range messages {
		line := m.Content
		if m.IsImage {
			line = "[image] " + line
		}
		switch m.Status {
		case session.StatusPending:
			line += " (sending...)"
		case session.StatusFailed:
			line += " (failed)"
		}

		if m.Role == model.RoleUser {
			b.WriteString(padLeft("you> "+line, bubbleWidth))
		} else {
			b.WriteString("ai>  " + line)
		}
		b.WriteString("\n")
	}
	if composing {
		b.WriteString("ai>  ...\n")
	}
	return b.String()
}

// RenderConversationList 渲染会话列表，当前会话以 * 标记。
func RenderConversationList(items []model.ConversationItem, activeID string) string {
	if len(items) == 0 {
		return "(没有会话)\n"
	}
	var b strings.Builder
	for i, item := range items {
		marker := " "
		if item.ID == activeID {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf("%s %2d. %-8s  %s\n", marker, i+1, shortID(item.ID), Truncate(item.Preview, previewWidth)))
	}
	return b.String()
}

// RenderHeader 渲染当前会话标题，未保存会话显示占位文本。
func RenderHeader(activeID string) string {
	if activeID == "" {
		return model.PreviewPlaceholder
	}
	return "Chat " + shortID(activeID)
}

// Truncate 将文本按 rune 截断到指定宽度，超长时追加省略号。
func Truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width]) + "…"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func padLeft(s string, width int) string {
	if len([]rune(s)) >= width {
		return s
	}
	return strings.Repeat(" ", width-len([]rune(s))) + s
}
