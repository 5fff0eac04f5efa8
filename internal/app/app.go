// Package app はアプリケーションの起動とワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/sage/internal/chat"
	"github.com/hitoshi/sage/internal/config"
	"github.com/hitoshi/sage/internal/crisis"
	"github.com/hitoshi/sage/internal/database"
	"github.com/hitoshi/sage/internal/dialogue"
	"github.com/hitoshi/sage/internal/extraction"
	"github.com/hitoshi/sage/internal/handler"
	"github.com/hitoshi/sage/internal/handoff"
	"github.com/hitoshi/sage/internal/llm"
	"github.com/hitoshi/sage/internal/logger"
	"github.com/hitoshi/sage/internal/matching"
	"github.com/hitoshi/sage/internal/metrics"
	"github.com/hitoshi/sage/internal/middleware"
	"github.com/hitoshi/sage/internal/repository"
	"github.com/hitoshi/sage/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("llm_provider", string(cfg.LLMProvider())),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	chatSessionRepo := repository.NewPostgresChatSessionRepo(db)
	turnRepo := repository.NewPostgresTurnRepo(db)
	intakeRepo := repository.NewPostgresIntakeRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	membershipRepo := repository.NewPostgresMembershipRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 推論サービスクライアントの初期化
	llmClient := llm.New(newLLMConfig(cfg), collector)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewMessageSanitizer()
	crisisDetector := crisis.NewDetector(cfg.CrisisLineText)
	responder := dialogue.NewResponder(llmClient, slog.Default())
	extractor := extraction.NewService(llmClient, slog.Default())
	matcher := matching.NewService(groupRepo, membershipRepo, llmClient, collector, slog.Default())
	chatService := chat.NewService(
		chatSessionRepo, turnRepo, intakeRepo,
		crisisDetector, responder, extractor, matcher,
		sanitizer, collector, slog.Default(),
	)
	handoffService := handoff.NewService(groupRepo, membershipRepo, intakeRepo, slog.Default())

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(newRateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		MetricsGatherer: registry,
		DB:              db,

		ChatService: chatService,
		LLMStatus: handler.LLMStatusInfo{
			Configured: llmClient.Configured(),
			Provider:   llmClient.Provider(),
			Model:      llmModel(cfg),
		},

		IntakeFinder:     intakeRepo,
		MembershipFinder: membershipRepo,
		GroupFinder:      groupRepo,

		HandoffService: handoffService,

		UserFinder:     userRepo,
		SessionDeleter: sessionRepo,
		CookieConfig: handler.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 推論サービス呼び出しを含むため長めに取る
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// newLLMConfig は設定から推論サービスクライアントの設定を組み立てる。
// GroqとOpenAIのキーが両方ある場合はGroqを優先する。
func newLLMConfig(cfg *config.Config) llm.Config {
	switch cfg.LLMProvider() {
	case config.LLMProviderGroq:
		return llm.Config{
			APIKey:   cfg.GroqAPIKey,
			BaseURL:  config.GroqBaseURL,
			Model:    cfg.GroqModel,
			Provider: "groq",
			Timeout:  cfg.LLMTimeout,
		}
	case config.LLMProviderOpenAI:
		return llm.Config{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
			Provider: "openai",
			Timeout:  cfg.LLMTimeout,
		}
	default:
		return llm.Config{Timeout: cfg.LLMTimeout}
	}
}

// llmModel は設定済みプロバイダーのモデル識別子を返す。未設定の場合は空文字。
func llmModel(cfg *config.Config) string {
	switch cfg.LLMProvider() {
	case config.LLMProviderGroq:
		return cfg.GroqModel
	case config.LLMProviderOpenAI:
		return cfg.OpenAIModel
	default:
		return ""
	}
}

// newRateLimiterConfig は設定のreq/min値からレート制限設定を組み立てる。
func newRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSend > 0 {
		rlCfg.MessageSendRate = rate.Limit(float64(cfg.RateLimitSend) / 60.0)
		rlCfg.MessageSendBurst = cfg.RateLimitSend
	}
	return rlCfg
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
