// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/sage/internal/chat"
	"github.com/hitoshi/sage/internal/middleware"
	"github.com/hitoshi/sage/internal/model"
)

const (
	// chatSourceHeader は応答の生成元（groq/openai/mock等）を返すヘッダー。
	chatSourceHeader = "X-Chat-Source"
	// chatErrorHeader は生成元でエラーが発生した場合の詳細を返すヘッダー。
	chatErrorHeader = "X-Chat-Error"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	// SubmitMessage はユーザーのメッセージを処理し、応答と完了シグナルを返す。
	SubmitMessage(ctx context.Context, userID, message string) (*chat.SubmitResult, error)
	// History は最新セッションの全ターンを時系列順で返す。
	History(ctx context.Context, userID string) ([]model.ChatTurn, error)
	// Finalize は明示的にインテークを完了させる。
	Finalize(ctx context.Context, userID string) (*chat.FinalizeResult, error)
	// Restart は完了済みセッションを未完了に戻す。
	Restart(ctx context.Context, userID string) (*chat.RestartResult, error)
	// CloseOpenSession は未完了セッションをインテークなしで閉じる。
	CloseOpenSession(ctx context.Context, userID string) error
}

// LLMStatusInfo は推論サービスの設定状態。llm-statusエンドポイントで返す。
type LLMStatusInfo struct {
	Configured bool
	Provider   string
	Model      string
}

// ChatHandler はインテーク会話のHTTPハンドラー。
type ChatHandler struct {
	service   ChatServiceInterface
	llmStatus LLMStatusInfo
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface, llmStatus LLMStatusInfo) *ChatHandler {
	return &ChatHandler{
		service:   service,
		llmStatus: llmStatus,
	}
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	Message string `json:"message"`
}

// groupResponse はグループ情報のAPIレスポンス。
type groupResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Focus string `json:"focus"`
}

// sendMessageResponse はメッセージ送信のAPIレスポンス。
// 完了シグナルは送信応答に同梱し、クライアントにポーリングさせない。
type sendMessageResponse struct {
	Reply          string         `json:"reply"`
	TurnID         string         `json:"turn_id"`
	Source         string         `json:"source,omitempty"`
	Crisis         bool           `json:"crisis"`
	IntakeComplete bool           `json:"intake_complete"`
	Group          *groupResponse `json:"group,omitempty"`
	MatchReason    string         `json:"match_reason,omitempty"`
}

// turnResponse は会話ターンのAPIレスポンス。
type turnResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessage はメッセージ送信を処理する。
// POST /api/chat/send
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	result, err := h.service.SubmitMessage(r.Context(), userID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.Source != "" {
		w.Header().Set(chatSourceHeader, result.Source)
	}
	if result.SourceErr != "" {
		w.Header().Set(chatErrorHeader, result.SourceErr)
	}

	resp := sendMessageResponse{
		Reply:          result.Reply,
		TurnID:         result.TurnID,
		Source:         result.Source,
		Crisis:         result.Crisis,
		IntakeComplete: result.IntakeComplete,
		MatchReason:    result.MatchReason,
	}
	if result.Group != nil {
		resp.Group = &groupResponse{
			ID:    result.Group.ID,
			Name:  result.Group.Name,
			Focus: result.Group.Focus,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// History は最新セッションの会話履歴を返す。
// GET /api/chat/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	turns, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		resp = append(resp, turnResponse{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"turns": resp})
}

// Complete は明示的なインテーク完了を処理する。
// POST /api/chat/complete
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.service.Finalize(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":          result.Status,
		"chat_session_id": result.SessionID,
		"group_id":        result.GroupID,
	})
}

// Restart は完了済みセッションの再開を処理する。
// POST /api/chat/restart
func (h *ChatHandler) Restart(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	result, err := h.service.Restart(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  result.Status,
		"message": result.Message,
	})
}

// Close は未完了セッションをインテークなしで閉じる。
// POST /api/chat/close
func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.CloseOpenSession(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LLMStatus は推論サービスの設定状態を返す。
// GET /api/chat/llm-status
func (h *ChatHandler) LLMStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"configured": h.llmStatus.Configured,
		"provider":   h.llmStatus.Provider,
		"model":      h.llmStatus.Model,
	})
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorized は未認証エラーレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please log in.",
	})
}

// writeInvalidRequestBody はリクエストボディ解析失敗のエラーレスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Failed to parse request body.",
		Category: "validation",
		Action:   "Send a valid JSON request body.",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmptyMessage:
		return http.StatusBadRequest
	case model.ErrCodeSessionNotFound,
		model.ErrCodeGroupNotFound,
		model.ErrCodeIntakeNotFound,
		model.ErrCodeMembershipNotFound:
		return http.StatusNotFound
	case model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeGroupCatalogEmpty:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
