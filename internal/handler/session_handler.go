package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sage/internal/middleware"
	"github.com/hitoshi/sage/internal/model"
)

const sessionCookieName = "session_id"

// UserFinder はユーザー取得のためのインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionDeleter はログインセッション破棄のためのインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionDeleter interface {
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// OpenSessionCloser はログアウト時に未完了の会話セッションを閉じるためのインターフェース。
type OpenSessionCloser interface {
	CloseOpenSession(ctx context.Context, userID string) error
}

// CookieConfig はセッションCookieの発行設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// SessionHandler はログインセッション管理のHTTPハンドラー。
// セッションの発行は外部のアイデンティティ基盤が行うため、
// ここでは参照と破棄のみを提供する。
type SessionHandler struct {
	users      UserFinder
	sessions   SessionDeleter
	chatCloser OpenSessionCloser
	config     CookieConfig
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(users UserFinder, sessions SessionDeleter, chatCloser OpenSessionCloser, config CookieConfig) *SessionHandler {
	return &SessionHandler{
		users:      users,
		sessions:   sessions,
		chatCloser: chatCloser,
		config:     config,
	}
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// Logout はセッションを破棄し、未完了の会話セッションを閉じる。
// 閉じられた会話は次のメッセージで新しいセッションとして始まる。
// POST /api/auth/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	// 会話セッションを先に閉じる。失敗してもログアウトは続行する
	if err := h.chatCloser.CloseOpenSession(r.Context(), userID); err != nil {
		slog.Error("failed to close open chat session on logout",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteByID(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session",
				slog.String("error", err.Error()))
			// 削除に失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}
