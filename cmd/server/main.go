// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"dejny-gpt-go/internal/config"
	"dejny-gpt-go/internal/handler"
	"dejny-gpt-go/internal/middleware"
	"dejny-gpt-go/internal/repository"
	"dejny-gpt-go/internal/service"
	"dejny-gpt-go/pkg/database"
	"dejny-gpt-go/pkg/llm"
	"dejny-gpt-go/pkg/log"
	"dejny-gpt-go/pkg/storage"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储，句柄显式注入各层
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	defer func() { _ = database.Close(db) }()

	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	defer func() { _ = rdb.Close() }()

	objectStore, err := storage.New(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	// 4. 初始化 Repository 与 Service (依赖注入)
	conversationRepo := repository.NewConversationRepository(db, rdb)
	llmClient := llm.NewClient(cfg.LLM)
	chatService := service.NewChatService(conversationRepo, llmClient)
	uploadService := service.NewUploadService(objectStore, cfg.Upload)

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 6. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	uploadHandler := handler.NewUploadHandler(uploadService)
	imageHandler := handler.NewImageHandler(chatService)

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

		apiV1.POST("/uploads", uploadHandler.Upload)
		apiV1.POST("/images", imageHandler.Generate)
	}

	// 7. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
