package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/sage/internal/middleware"
	"github.com/hitoshi/sage/internal/model"
)

// IntakeFinder はインテーク取得のためのインターフェース。
// repository.IntakeRepositoryの部分集合として定義する。
type IntakeFinder interface {
	// FindLatestByUserID はユーザーの最新のインテークを取得する。見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.Intake, error)
}

// IntakeHandler は抽出済みインテークのHTTPハンドラー。
type IntakeHandler struct {
	finder IntakeFinder
}

// NewIntakeHandler はIntakeHandlerを生成する。
func NewIntakeHandler(finder IntakeFinder) *IntakeHandler {
	return &IntakeHandler{finder: finder}
}

// intakeResponse はインテークのAPIレスポンス。
// 未取得のフィールドはnullで返す。
type intakeResponse struct {
	PrimaryConcern       *string   `json:"primary_concern"`
	ContextualBackground *string   `json:"contextual_background"`
	EmotionalIntensity   *int      `json:"emotional_intensity"`
	LifeImpactAreas      []string  `json:"life_impact_areas"`
	SupportGoals         *string   `json:"support_goals"`
	Availability         *string   `json:"availability"`
	GroupID              *string   `json:"group_id"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// GetLatest はユーザーの最新インテークを返す。
// GET /api/intake
func (h *IntakeHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	intake, err := h.finder.FindLatestByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if intake == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewIntakeNotFoundError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intakeResponse{
		PrimaryConcern:       intake.PrimaryConcern,
		ContextualBackground: intake.ContextualBackground,
		EmotionalIntensity:   intake.EmotionalIntensity,
		LifeImpactAreas:      intake.LifeImpactAreas,
		SupportGoals:         intake.SupportGoals,
		Availability:         intake.Availability,
		GroupID:              intake.GroupID,
		UpdatedAt:            intake.UpdatedAt,
	})
}
