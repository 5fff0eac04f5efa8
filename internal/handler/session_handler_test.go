package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/sage/internal/model"
)

// --- モック定義 ---

// mockUserFinder はUserFinderのモック実装。
type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// mockSessionDeleter はSessionDeleterのモック実装。
type mockSessionDeleter struct {
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionDeleter) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

// mockOpenSessionCloser はOpenSessionCloserのモック実装。
type mockOpenSessionCloser struct {
	closeOpenSessionFn func(ctx context.Context, userID string) error
}

func (m *mockOpenSessionCloser) CloseOpenSession(ctx context.Context, userID string) error {
	if m.closeOpenSessionFn != nil {
		return m.closeOpenSessionFn(ctx, userID)
	}
	return nil
}

// --- GET /api/auth/me テスト ---

func TestSessionHandler_Me_Success(t *testing.T) {
	users := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id != "user-123" {
				t.Errorf("id = %q, want user-123", id)
			}
			return &model.User{ID: "user-123", Email: "taro@example.com", Name: "Taro"}, nil
		},
	}

	h := NewSessionHandler(users, &mockSessionDeleter{}, &mockOpenSessionCloser{}, CookieConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] != "user-123" || resp["email"] != "taro@example.com" {
		t.Errorf("resp = %v", resp)
	}
}

func TestSessionHandler_Me_UserNotFound_Returns401(t *testing.T) {
	h := NewSessionHandler(&mockUserFinder{}, &mockSessionDeleter{}, &mockOpenSessionCloser{}, CookieConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = withUserID(req, "user-gone")
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeUserNotFound)
	}
}

// --- POST /api/auth/logout テスト ---

func TestSessionHandler_Logout_DeletesSessionAndClosesChat(t *testing.T) {
	deletedID := ""
	sessions := &mockSessionDeleter{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	closedUserID := ""
	closer := &mockOpenSessionCloser{
		closeOpenSessionFn: func(ctx context.Context, userID string) error {
			closedUserID = userID
			return nil
		},
	}

	h := NewSessionHandler(&mockUserFinder{}, sessions, closer, CookieConfig{Secure: true})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = withUserID(req, "user-123")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if deletedID != "sess-abc" {
		t.Errorf("deleted session = %q, want sess-abc", deletedID)
	}
	if closedUserID != "user-123" {
		t.Errorf("closed chat for user = %q, want user-123", closedUserID)
	}

	// セッションCookieがクリアされていること
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" && c.Value == "" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie should be cleared")
	}
}

func TestSessionHandler_Logout_ChatCloseFailure_StillLogsOut(t *testing.T) {
	deleted := false
	sessions := &mockSessionDeleter{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	closer := &mockOpenSessionCloser{
		closeOpenSessionFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	h := NewSessionHandler(&mockUserFinder{}, sessions, closer, CookieConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = withUserID(req, "user-123")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !deleted {
		t.Error("session should be deleted even if chat close fails")
	}
}

func TestSessionHandler_Logout_NoCookie_StillClearsAndReturns204(t *testing.T) {
	h := NewSessionHandler(&mockUserFinder{}, &mockSessionDeleter{}, &mockOpenSessionCloser{}, CookieConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}
