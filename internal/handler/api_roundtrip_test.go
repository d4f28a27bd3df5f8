package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/pkg/apiclient"
)

// 用真实路由承接类型化客户端，覆盖客户端与服务端约定的往返路径。
func TestClientNewChatRoundTrip(t *testing.T) {
	r := setupRouter(t, &stubLLMClient{reply: "welcome"})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	client := apiclient.NewClient(server.URL)
	ctx := context.Background()

	// 没有活动会话时直接发送：消息要落库并取得回复，而不是只建出一个空会话。
	convID, reply, err := client.PostMessage(ctx, "", "hello", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}
	if convID == "" {
		t.Fatal("应返回新建会话的 ID")
	}
	if reply != "welcome" {
		t.Errorf("期望回复 'welcome', 得到 %q", reply)
	}

	history, err := client.GetHistory(ctx, convID)
	if err != nil {
		t.Fatalf("查询历史失败: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("期望 2 条消息, 得到 %d", len(history))
	}
	if history[0].Role != model.RoleUser || history[0].Content != "hello" {
		t.Errorf("用户消息未持久化: %+v", history[0])
	}
	if history[1].Role != model.RoleAssistant || history[1].Content != "welcome" {
		t.Errorf("assistant 回复未持久化: %+v", history[1])
	}

	items, err := client.ListConversations(ctx)
	if err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if len(items) != 1 || items[0].ID != convID || items[0].Preview != "welcome" {
		t.Errorf("会话列表不正确: %+v", items)
	}
}
