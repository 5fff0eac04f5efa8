package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sage/internal/metrics"
	"github.com/hitoshi/sage/internal/middleware"
)

// Pinger はヘルスチェックでのDB疎通確認のためのインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 可観測性
	MetricsGatherer prometheus.Gatherer
	DB              Pinger

	// チャット
	ChatService ChatServiceInterface
	LLMStatus   LLMStatusInfo

	// インテーク・グループ
	IntakeFinder     IntakeFinder
	MembershipFinder MembershipFinder
	GroupFinder      GroupFinder

	// 引き継ぎ
	HandoffService HandoffServiceInterface

	// セッション管理
	UserFinder     UserFinder
	SessionDeleter SessionDeleter
	CookieConfig   CookieConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Session → CSRF → RateLimit(General)
//
// /health、/metrics、/api/csrf-tokenは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	chatHandler := NewChatHandler(deps.ChatService, deps.LLMStatus)
	intakeHandler := NewIntakeHandler(deps.IntakeFinder)
	groupHandler := NewGroupHandler(deps.MembershipFinder, deps.GroupFinder)
	handoffHandler := NewHandoffHandler(deps.HandoffService)
	sessionHandler := NewSessionHandler(deps.UserFinder, deps.SessionDeleter, deps.ChatService, deps.CookieConfig)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.DB))

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// フロントエンドが最初のPOSTの前にCSRFトークンを取得するためのルート
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// インテーク会話
		r.Route("/api/chat", func(r chi.Router) {
			// POST /api/chat/send - メッセージ送信（送信専用レート制限を追加）
			r.With(deps.RateLimiter.MessageSendMiddleware()).Post("/send", chatHandler.SendMessage)

			r.Get("/history", chatHandler.History)
			r.Post("/complete", chatHandler.Complete)
			r.Post("/restart", chatHandler.Restart)
			r.Post("/close", chatHandler.Close)
			r.Get("/llm-status", chatHandler.LLMStatus)
		})

		// インテーク参照
		r.Get("/api/intake", intakeHandler.GetLatest)

		// グループメンバーシップ
		r.Get("/api/groups/my", groupHandler.GetMyGroup)

		// セラピスト向け引き継ぎ資料
		r.Route("/api/handoff", func(r chi.Router) {
			r.Get("/groups", handoffHandler.ListGroups)
			r.Get("/group/{id}", handoffHandler.GetDocument)
		})

		// セッション管理
		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/me", sessionHandler.Me)
			r.Post("/logout", sessionHandler.Logout)
		})
	})

	return r
}

// newHealthHandler はヘルスチェックハンドラーを返す。
// DBが渡されている場合は疎通確認を行い、失敗時は503を返す。
func newHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
