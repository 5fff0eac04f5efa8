package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/sage/internal/middleware"
	"github.com/hitoshi/sage/internal/model"
)

// MembershipFinder はアクティブメンバーシップ取得のためのインターフェース。
// repository.MembershipRepositoryの部分集合として定義する。
type MembershipFinder interface {
	// FindActiveByUserID はユーザーのアクティブなメンバーシップを取得する。
	// 見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.Membership, error)
}

// GroupFinder はグループ取得のためのインターフェース。
// repository.GroupRepositoryの部分集合として定義する。
type GroupFinder interface {
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)
}

// GroupHandler はグループメンバーシップのHTTPハンドラー。
type GroupHandler struct {
	memberships MembershipFinder
	groups      GroupFinder
}

// NewGroupHandler はGroupHandlerを生成する。
func NewGroupHandler(memberships MembershipFinder, groups GroupFinder) *GroupHandler {
	return &GroupHandler{
		memberships: memberships,
		groups:      groups,
	}
}

// myGroupResponse はユーザーの所属グループのAPIレスポンス。
type myGroupResponse struct {
	GroupID     string    `json:"group_id"`
	GroupName   string    `json:"group_name"`
	Focus       string    `json:"focus"`
	Status      string    `json:"status"`
	MatchReason string    `json:"match_reason"`
	JoinedAt    time.Time `json:"joined_at"`
}

// GetMyGroup はユーザーの現在の所属グループを返す。
// GET /api/groups/my
func (h *GroupHandler) GetMyGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	membership, err := h.memberships.FindActiveByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if membership == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMembershipNotFoundError())
		return
	}

	group, err := h.groups.FindByID(r.Context(), membership.GroupID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if group == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewGroupNotFoundError(membership.GroupID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(myGroupResponse{
		GroupID:     group.ID,
		GroupName:   group.Name,
		Focus:       group.Focus,
		Status:      string(membership.Status),
		MatchReason: membership.MatchReason,
		JoinedAt:    membership.JoinedAt,
	})
}
