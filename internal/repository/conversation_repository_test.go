package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dejny-gpt-go/internal/model"
	"dejny-gpt-go/pkg/database"
)

func setupRepo(t *testing.T) (ConversationRepository, *miniredis.Miniredis) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewConversationRepository(db, rdb), mr
}

func addMessage(t *testing.T, repo ConversationRepository, convID, role, content string) {
	t.Helper()
	err := repo.CreateMessage(context.Background(), &model.Message{
		ConversationID: convID,
		Role:           role,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("写入消息失败: %v", err)
	}
}

func TestListConversationsPreview(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	busy, err := repo.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	addMessage(t, repo, busy.ID, model.RoleUser, "ping")
	addMessage(t, repo, busy.ID, model.RoleAssistant, "pong")

	items, err := repo.ListConversations(ctx)
	if err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望 2 个会话, 得到 %d", len(items))
	}

	previews := map[string]string{}
	for _, item := range items {
		previews[item.ID] = item.Preview
	}
	// 预览取最近一条消息，即 assistant 的回复而不是用户的提问。
	if previews[busy.ID] != "pong" {
		t.Errorf("期望预览为最新消息 'pong', 得到 %q", previews[busy.ID])
	}
	if previews[empty.ID] != model.PreviewPlaceholder {
		t.Errorf("空会话预览应为 %q, 得到 %q", model.PreviewPlaceholder, previews[empty.ID])
	}
}

func TestListMessagesOrdering(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	contents := []string{"one", "two", "three", "four"}
	for i, content := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		addMessage(t, repo, conv.ID, role, content)
	}

	msgs, err := repo.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("查询历史失败: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("期望 %d 条消息, 得到 %d", len(contents), len(msgs))
	}
	var prev time.Time
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Errorf("位置 %d 期望 %q, 得到 %q", i, contents[i], m.Content)
		}
		if m.CreatedAt.Before(prev) {
			t.Errorf("位置 %d 的创建时间回退了", i)
		}
		prev = m.CreatedAt
	}
}

func TestDeleteConversationIdempotent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	addMessage(t, repo, conv.ID, model.RoleUser, "hello")

	if err := repo.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("删除会话失败: %v", err)
	}
	// 第二次删除同一 ID 不是错误。
	if err := repo.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("重复删除应当成功: %v", err)
	}

	msgs, err := repo.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("查询历史失败: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("删除后消息应为空, 得到 %d 条", len(msgs))
	}
}

func TestListCacheInvalidation(t *testing.T) {
	repo, mr := setupRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	// 第一次查询落库并写入缓存。
	if _, err := repo.ListConversations(ctx); err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if !mr.Exists(conversationListKey) {
		t.Fatal("查询后应存在列表缓存")
	}

	// 写操作使缓存失效，下一次查询能看到新消息的预览。
	addMessage(t, repo, conv.ID, model.RoleUser, "fresh")
	if mr.Exists(conversationListKey) {
		t.Fatal("写入消息后缓存应已失效")
	}

	items, err := repo.ListConversations(ctx)
	if err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if items[0].Preview != "fresh" {
		t.Errorf("期望预览 'fresh', 得到 %q", items[0].Preview)
	}
}

func TestFindConversationNotFound(t *testing.T) {
	repo, _ := setupRepo(t)

	_, err := repo.FindConversation(context.Background(), "missing")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望 gorm.ErrRecordNotFound, 得到 %v", err)
	}
}
