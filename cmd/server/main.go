package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/handler"
	"autoasesor/internal/llm"
	"autoasesor/internal/messaging"
	"autoasesor/internal/normalize"
	"autoasesor/internal/repository"
	"autoasesor/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	handler.Version = Version
	logger.Info("starting autoasesor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	gin.SetMode(cfg.Server.GinMode)

	db, err := repository.NewDB(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	vectorRepo := repository.NewVectorRepository(db, cfg.PostgreSQL.MaxInFlight, logger)
	if err := vectorRepo.EnsureSchema(context.Background(), cfg.OpenAI.EmbeddingDimensions); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}
	chatStore := repository.NewChatStore(db, logger)

	if !cfg.OpenAI.Enabled {
		logger.Warn("OPENAI_API_KEY not set, classification and synthesis will fail")
	}
	llmClient := llm.NewOpenAIClient(&cfg.OpenAI, logger)
	logger.Info("llm client initialized",
		zap.String("api_base", cfg.OpenAI.APIBase),
		zap.String("chat_model", cfg.OpenAI.ChatModel),
		zap.String("embedding_model", cfg.OpenAI.EmbeddingModel))

	vocab := normalize.NewVocabulary(vocabularyLoader(vectorRepo, cfg.Search.VocabScanSize), logger)
	reranker := service.NewReranker(cfg.Rerank, logger)
	gateway := service.NewGateway(vectorRepo, llmClient, vocab, reranker, cfg.Search, logger)
	classifier := service.NewClassifier(llmClient, logger)
	extractor := service.NewExtractor(llmClient, logger)

	replyCache := service.NewReplyCache(cfg.Redis, logger)
	defer replyCache.Close()

	router := service.NewRouter(llmClient, gateway, classifier, extractor, replyCache, cfg.Search, cfg.Financing, logger)
	runner := service.NewRunner(logger)
	agent := service.NewAgent(router, chatStore, runner, llmClient, logger)

	twilioClient := messaging.NewTwilioClient(cfg.Twilio, logger)
	if !twilioClient.IsEnabled() {
		logger.Warn("twilio credentials not set, outbound whatsapp replies disabled")
	}

	chatHandler := handler.NewChatHandler(agent, logger)
	whatsappHandler := handler.NewWhatsAppHandler(agent, twilioClient, runner, logger)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/health", handler.Health)
	engine.GET("/version", handler.GetVersion)

	apiV1 := engine.Group("/api/v1")
	{
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.POST("/whatsapp/webhook", whatsappHandler.Webhook)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	// Let in-flight background tasks (persists, outbound sends) finish
	runner.Wait()
	logger.Info("server stopped")
}

// vocabularyLoader scans the catalog payloads page by page and collects
// the distinct brand and model spellings
func vocabularyLoader(repo *repository.VectorRepository, pageSize int) normalize.LoadFunc {
	return func(ctx context.Context) ([]string, []string, error) {
		brandSet := make(map[string]struct{})
		modelSet := make(map[string]struct{})

		for offset := 0; ; offset += pageSize {
			payloads, err := repo.ScrollPayloads(ctx, repository.CollectionCatalog, pageSize, offset)
			if err != nil {
				return nil, nil, err
			}
			for _, payload := range payloads {
				if brand, ok := payload["make"].(string); ok && strings.TrimSpace(brand) != "" {
					brandSet[strings.TrimSpace(brand)] = struct{}{}
				}
				if mdl, ok := payload["model"].(string); ok && strings.TrimSpace(mdl) != "" {
					modelSet[strings.TrimSpace(mdl)] = struct{}{}
				}
			}
			if len(payloads) < pageSize {
				break
			}
		}

		brands := make([]string, 0, len(brandSet))
		for b := range brandSet {
			brands = append(brands, b)
		}
		models := make([]string, 0, len(modelSet))
		for m := range modelSet {
			models = append(models, m)
		}
		return brands, models, nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// requestLogger tags each request with an id and logs it with latency
// and status. The id is echoed in the X-Request-ID response header.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
