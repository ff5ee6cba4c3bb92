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

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/handler"
	"xiaowen-go/internal/middleware"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/pipeline"
	"xiaowen-go/internal/repository"
	"xiaowen-go/internal/service"
	"xiaowen-go/pkg/database"
	"xiaowen-go/pkg/embedding"
	"xiaowen-go/pkg/es"
	"xiaowen-go/pkg/kafka"
	"xiaowen-go/pkg/llm"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/storage"
	"xiaowen-go/pkg/tika"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化基础设施客户端（显式构造，句柄注入各组件）
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := db.AutoMigrate(&model.Document{}, &model.Passage{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}
	minioClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}
	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal("Elasticsearch 初始化失败", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(db)
	passageRepo := repository.NewPassageRepository(db)
	conversationRepo := repository.NewConversationRepository(rdb, cfg.Chat.SessionTTL)
	embeddingCache := repository.NewEmbeddingCache(rdb, cfg.Embedding.CacheTTL)

	// 5. 初始化能力客户端与摄取管道
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	resolver := pipeline.NewResolver(cfg.Ingest)
	processor := pipeline.NewProcessor(
		minioClient,
		tikaClient,
		embeddingClient,
		embeddingCache,
		esClient,
		docRepo,
		passageRepo,
		cfg.Ingest,
		cfg.Embedding,
	)

	// 6. 初始化 Service（依赖注入）
	ingestService := service.NewIngestService(resolver, minioClient, producer, docRepo, esClient)
	retrievalService := service.NewRetrievalService(docRepo, embeddingClient, embeddingCache, esClient, cfg.Chat)
	conversationService := service.NewConversationService(conversationRepo, cfg.Chat)
	chatService := service.NewChatService(retrievalService, conversationService, llmClient, cfg.Chat)
	summaryService := service.NewSummaryService(docRepo, passageRepo, llmClient, cfg.Chat)
	quizService := service.NewQuizService(docRepo, passageRepo, llmClient, cfg.Chat)

	// 7. 启动后台 Kafka 消费者
	consumer := kafka.NewConsumer(cfg.Kafka, rdb, processor)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go consumer.Start(consumerCtx)

	// 8. 设置 Gin 并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r,
		handler.NewDocumentHandler(ingestService, retrievalService),
		handler.NewChatHandler(chatService),
		handler.NewSessionHandler(conversationService),
		handler.NewSummaryHandler(summaryService),
		handler.NewQuizHandler(quizService),
	)

	// 9. 启动 HTTP 服务器并实现优雅停机
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先停消费者，不再接收新的摄取任务
	stopConsumer()
	if err := consumer.Close(); err != nil {
		log.Error("关闭 Kafka 消费者失败", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	if err := producer.Close(); err != nil {
		log.Error("关闭 Kafka 生产者失败", err)
	}
	log.Info("服务已优雅关闭")
}
