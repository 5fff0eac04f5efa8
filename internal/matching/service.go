package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sage/internal/extraction"
	"github.com/hitoshi/sage/internal/llm"
	"github.com/hitoshi/sage/internal/model"
	"github.com/hitoshi/sage/internal/repository"
)

// GroupMatcher はグループ選択に必要な推論クライアントの操作。
type GroupMatcher interface {
	MatchGroup(ctx context.Context, intakeSummary, catalog string) (*llm.GroupChoice, error)
	Configured() bool
}

// MetricsCollector はマッチング結果の計測インターフェース。
type MetricsCollector interface {
	RecordMatchFallback()
}

// Service はインテークをフォーカスグループに割り当てる。
// 推論サービスによる選択を第一候補とし、利用不可・失敗・不正なキーの
// 場合はキーワード分類に退避する。カタログが存在する限り割り当ては必ず成立する。
type Service struct {
	groupRepo      repository.GroupRepository
	membershipRepo repository.MembershipRepository
	llm            GroupMatcher
	metrics        MetricsCollector
	logger         *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	groupRepo repository.GroupRepository,
	membershipRepo repository.MembershipRepository,
	matcher GroupMatcher,
	metrics MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		llm:            matcher,
		metrics:        metrics,
		logger:         logger,
	}
}

// Assign はユーザーをフォーカスグループに割り当て、マッチ理由付きの
// アクティブなメンバーシップを作成する。既存のアクティブなメンバーシップは
// 脱退扱いになる。再実行してもアクティブはちょうど1件に保たれる。
func (s *Service) Assign(ctx context.Context, userID string, profile extraction.Extraction) (*model.Group, string, error) {
	if err := s.groupRepo.EnsureDefaults(ctx, DefaultGroups()); err != nil {
		return nil, "", fmt.Errorf("failed to ensure group catalog: %w", err)
	}
	groups, err := s.groupRepo.ListAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, "", model.NewGroupCatalogEmptyError()
	}

	focus, reason := s.chooseFocus(ctx, profile, groups)

	group := resolveGroup(groups, focus)
	membership := &model.Membership{
		ID:          uuid.NewString(),
		GroupID:     group.ID,
		UserID:      userID,
		Status:      model.MembershipStatusActive,
		MatchReason: reason,
		JoinedAt:    time.Now(),
	}
	if err := s.membershipRepo.ReplaceActive(ctx, membership); err != nil {
		return nil, "", fmt.Errorf("failed to replace active membership: %w", err)
	}

	s.logger.Info("assigned user to group",
		slog.String("user_id", userID),
		slog.String("group_id", group.ID),
		slog.String("focus", group.Focus))

	return group, reason, nil
}

// chooseFocus は推論サービスによる選択を試み、失敗時はキーワード分類に退避する。
// 返されたfocusキーはカタログの実在キーに対して検証済み、とは限らない点に注意。
// 最終的な行の解決はresolveGroupが行う。
func (s *Service) chooseFocus(ctx context.Context, profile extraction.Extraction, groups []model.Group) (string, string) {
	if s.llm.Configured() {
		choice, err := s.matchWithLLM(ctx, profile, groups)
		if err == nil {
			s.logger.Info("assigned using llm match", slog.String("focus", choice.Focus))
			return choice.Focus, choice.MatchReason
		}
		s.logger.Warn("llm matching failed, using keyword fallback", slog.String("error", err.Error()))
	}

	if s.metrics != nil {
		s.metrics.RecordMatchFallback()
	}
	focus, reason := MatchFallback(profile)
	s.logger.Info("assigned using keyword fallback", slog.String("focus", focus))
	return focus, reason
}

// matchWithLLM は推論サービスにグループを1つ選ばせる。
// カタログに存在しないキーが返った場合は失敗として扱う。
func (s *Service) matchWithLLM(ctx context.Context, profile extraction.Extraction, groups []model.Group) (*llm.GroupChoice, error) {
	summary, err := json.MarshalIndent(map[string]interface{}{
		"primary_concern":       profile.PrimaryConcern,
		"contextual_background": profile.ContextualBackground,
		"life_impact_areas":     profile.LifeImpactAreas,
		"support_goals":         profile.SupportGoals,
		"emotional_intensity":   profile.EmotionalIntensity,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intake summary: %w", err)
	}

	catalog := make([]map[string]string, 0, len(groups))
	validFoci := make(map[string]bool, len(groups))
	for _, g := range groups {
		catalog = append(catalog, map[string]string{"focus": g.Focus, "name": g.Name})
		validFoci[g.Focus] = true
	}
	catalogJSON, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal group catalog: %w", err)
	}

	choice, err := s.llm.MatchGroup(ctx, string(summary), string(catalogJSON))
	if err != nil {
		return nil, err
	}
	if !validFoci[choice.Focus] {
		return nil, fmt.Errorf("llm chose unknown focus key: %q", choice.Focus)
	}
	if choice.MatchReason == "" {
		choice.MatchReason = "This group matches your intake focus."
	}
	return choice, nil
}

// resolveGroup はfocusキーからグループ行を解決する。
// 完全一致 → generalグループ → カタログ先頭、の順で必ず1件に到達する。
func resolveGroup(groups []model.Group, focus string) *model.Group {
	for i := range groups {
		if groups[i].Focus == focus {
			return &groups[i]
		}
	}
	for i := range groups {
		if groups[i].Focus == FocusGeneral {
			return &groups[i]
		}
	}
	return &groups[0]
}
