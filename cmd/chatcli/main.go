// Package main 是终端聊天客户端的入口点。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dejny-gpt-go/internal/session"
	"dejny-gpt-go/internal/view"
	"dejny-gpt-go/pkg/apiclient"
)

func main() {
	serverURL := flag.String("server", "http://127.0.0.1:8080", "聊天服务地址")
	flag.Parse()

	client := apiclient.NewClient(*serverURL)
	controller := session.NewController(client)
	ctx := context.Background()

	if err := controller.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "加载会话列表失败: %v\n", err)
	}

	fmt.Println("DejnyGPT 终端客户端。输入 /help 查看命令。")
	fmt.Print(view.RenderConversationList(controller.Conversations(), controller.ActiveID()))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[%s] > ", view.RenderHeader(controller.ActiveID()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, controller, line); quit {
				return
			}
			continue
		}

		// 输入先进入草稿，提交成功后草稿清空，失败时保留以便重发。
		controller.SetDraft(line)
		if err := controller.SubmitDraft(ctx); err != nil {
			if errors.Is(err, session.ErrComposing) {
				fmt.Println("上一条回复还在生成中，请稍候。")
				continue
			}
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
		}
		fmt.Print(view.RenderMessages(controller.Messages(), controller.IsComposing()))
	}
}

// runCommand 处理以 / 开头的命令，返回 true 表示退出。
func runCommand(ctx context.Context, controller *session.Controller, line string) bool {
	parts := strings.SplitN(line, " ", 2)
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch parts[0] {
	case "/help":
		fmt.Println("/new 新建会话  /list 会话列表  /open <序号> 打开会话  /delete <序号> 删除会话  /image <路径> 发送图片  /quit 退出")
	case "/new":
		if _, err := controller.NewConversation(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "创建会话失败: %v\n", err)
		}
	case "/list":
		if err := controller.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "刷新会话列表失败: %v\n", err)
		}
		fmt.Print(view.RenderConversationList(controller.Conversations(), controller.ActiveID()))
	case "/open":
		if id, ok := resolveConversation(controller, arg); ok {
			if err := controller.SelectConversation(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "加载会话失败: %v\n", err)
			}
			fmt.Print(view.RenderMessages(controller.Messages(), controller.IsComposing()))
		}
	case "/delete":
		if id, ok := resolveConversation(controller, arg); ok {
			controller.DeleteConversation(ctx, id)
			fmt.Print(view.RenderConversationList(controller.Conversations(), controller.ActiveID()))
		}
	case "/image":
		if arg == "" {
			fmt.Println("用法: /image <文件路径>")
			return false
		}
		file, err := os.Open(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "打开文件失败: %v\n", err)
			return false
		}
		defer file.Close()
		if err := controller.SubmitImage(ctx, filepath.Base(arg), file); err != nil {
			if errors.Is(err, session.ErrComposing) {
				fmt.Println("上一条回复还在生成中，请稍候。")
				return false
			}
			fmt.Fprintf(os.Stderr, "发送图片失败: %v\n", err)
		}
		fmt.Print(view.RenderMessages(controller.Messages(), controller.IsComposing()))
	case "/quit", "/exit":
		return true
	default:
		fmt.Println("未知命令，输入 /help 查看帮助。")
	}
	return false
}

// resolveConversation 将列表序号解析为会话 ID。
func resolveConversation(controller *session.Controller, arg string) (string, bool) {
	if arg == "" {
		fmt.Println("缺少会话序号")
		return "", false
	}
	items := controller.Conversations()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(items) {
			fmt.Println("序号超出范围")
			return "", false
		}
		return items[n-1].ID, true
	}
	// 也接受直接给出完整会话 ID
	return arg, true
}
