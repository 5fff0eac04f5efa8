package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sage/internal/handoff"
	"github.com/hitoshi/sage/internal/repository"
)

// HandoffServiceInterface は引き継ぎハンドラーが必要とするサービスインターフェース。
type HandoffServiceInterface interface {
	// ListGroups は全グループをアクティブメンバー数付きで返す。
	ListGroups(ctx context.Context) ([]repository.GroupWithCount, error)
	// BuildDocument は指定グループの引き継ぎ資料を組み立てる。
	BuildDocument(ctx context.Context, groupID string) (*handoff.Document, error)
}

// HandoffHandler はセラピスト向け引き継ぎ資料のHTTPハンドラー。
type HandoffHandler struct {
	service HandoffServiceInterface
}

// NewHandoffHandler はHandoffHandlerを生成する。
func NewHandoffHandler(service HandoffServiceInterface) *HandoffHandler {
	return &HandoffHandler{service: service}
}

// handoffGroupResponse はグループ一覧のAPIレスポンス。
type handoffGroupResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Focus             string `json:"focus"`
	ActiveMemberCount int    `json:"active_member_count"`
}

// participantResponse は参加者要約のAPIレスポンス。
type participantResponse struct {
	UserID             string `json:"user_id"`
	PrimaryConcern     string `json:"primary_concern"`
	EmotionalIntensity *int   `json:"emotional_intensity"`
	SupportGoals       string `json:"support_goals"`
	MatchReason        string `json:"match_reason"`
}

// handoffDocumentResponse は引き継ぎ資料のAPIレスポンス。
type handoffDocumentResponse struct {
	GroupID                   string                `json:"group_id"`
	GroupName                 string                `json:"group_name"`
	GroupTheme                string                `json:"group_theme"`
	Participants              []participantResponse `json:"participants"`
	FullConversationAvailable bool                  `json:"full_conversation_available"`
}

// ListGroups は全グループをアクティブメンバー数付きで返す。
// GET /api/handoff/groups
func (h *HandoffHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]handoffGroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, handoffGroupResponse{
			ID:                g.ID,
			Name:              g.Name,
			Focus:             g.Focus,
			ActiveMemberCount: g.ActiveMemberCount,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"groups": resp})
}

// GetDocument は指定グループの引き継ぎ資料を返す。
// GET /api/handoff/group/{id}
func (h *HandoffHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")

	doc, err := h.service.BuildDocument(r.Context(), groupID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	participants := make([]participantResponse, 0, len(doc.Participants))
	for _, p := range doc.Participants {
		participants = append(participants, participantResponse{
			UserID:             p.UserID,
			PrimaryConcern:     p.PrimaryConcern,
			EmotionalIntensity: p.EmotionalIntensity,
			SupportGoals:       p.SupportGoals,
			MatchReason:        p.MatchReason,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(handoffDocumentResponse{
		GroupID:                   doc.GroupID,
		GroupName:                 doc.GroupName,
		GroupTheme:                doc.GroupTheme,
		Participants:              participants,
		FullConversationAvailable: doc.FullConversationAvailable,
	})
}
