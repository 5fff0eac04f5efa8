package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/sage/internal/model"
)

// --- モック定義 ---

// mockMembershipFinder はMembershipFinderのモック実装。
type mockMembershipFinder struct {
	findActiveByUserIDFn func(ctx context.Context, userID string) (*model.Membership, error)
}

func (m *mockMembershipFinder) FindActiveByUserID(ctx context.Context, userID string) (*model.Membership, error) {
	if m.findActiveByUserIDFn != nil {
		return m.findActiveByUserIDFn(ctx, userID)
	}
	return nil, nil
}

// mockGroupFinder はGroupFinderのモック実装。
type mockGroupFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Group, error)
}

func (m *mockGroupFinder) FindByID(ctx context.Context, id string) (*model.Group, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// --- GET /api/groups/my テスト ---

func TestGroupHandler_GetMyGroup_Success(t *testing.T) {
	memberships := &mockMembershipFinder{
		findActiveByUserIDFn: func(ctx context.Context, userID string) (*model.Membership, error) {
			return &model.Membership{
				ID:          "m-1",
				GroupID:     "g-1",
				UserID:      userID,
				Status:      model.MembershipStatusActive,
				MatchReason: "Primary concern: grief; life impact: family.",
			}, nil
		},
	}
	groups := &mockGroupFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Group, error) {
			if id != "g-1" {
				t.Errorf("group ID = %q, want g-1", id)
			}
			return &model.Group{ID: "g-1", Name: "Grief & Loss", Focus: "grief_loss"}, nil
		},
	}

	h := NewGroupHandler(memberships, groups)

	req := httptest.NewRequest(http.MethodGet, "/api/groups/my", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.GetMyGroup(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp myGroupResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.GroupID != "g-1" || resp.GroupName != "Grief & Loss" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Focus != "grief_loss" {
		t.Errorf("focus = %q, want grief_loss", resp.Focus)
	}
	if resp.Status != "active" {
		t.Errorf("status = %q, want active", resp.Status)
	}
	if resp.MatchReason == "" {
		t.Error("match_reason should be present")
	}
}

func TestGroupHandler_GetMyGroup_NoMembership_Returns404(t *testing.T) {
	h := NewGroupHandler(&mockMembershipFinder{}, &mockGroupFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/groups/my", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.GetMyGroup(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeMembershipNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeMembershipNotFound)
	}
}

func TestGroupHandler_GetMyGroup_GroupMissing_Returns404(t *testing.T) {
	memberships := &mockMembershipFinder{
		findActiveByUserIDFn: func(ctx context.Context, userID string) (*model.Membership, error) {
			return &model.Membership{ID: "m-1", GroupID: "g-gone", UserID: userID, Status: model.MembershipStatusActive}, nil
		},
	}

	h := NewGroupHandler(memberships, &mockGroupFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/groups/my", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.GetMyGroup(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeGroupNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeGroupNotFound)
	}
}

func TestGroupHandler_GetMyGroup_NoUserID_Returns401(t *testing.T) {
	h := NewGroupHandler(&mockMembershipFinder{}, &mockGroupFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/groups/my", nil)
	w := httptest.NewRecorder()

	h.GetMyGroup(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
