// Package handoff はセラピスト向けの引き継ぎ資料を組み立てる。
// グループのアクティブメンバーのインテーク要約をまとめ、
// セッション開始前の状況把握に使う。
package handoff

import (
	"context"
	"log/slog"

	"github.com/hitoshi/sage/internal/model"
	"github.com/hitoshi/sage/internal/repository"
)

// ParticipantSummary は参加者1人分のインテーク要約。
// 完全な会話ログは含めず、概要のみを渡す。
type ParticipantSummary struct {
	UserID             string
	PrimaryConcern     string
	EmotionalIntensity *int
	SupportGoals       string
	MatchReason        string
}

// Document はグループ1つ分の引き継ぎ資料。
type Document struct {
	GroupID                   string
	GroupName                 string
	GroupTheme                string
	Participants              []ParticipantSummary
	FullConversationAvailable bool
}

// Service は引き継ぎ資料の組み立てを行う。
type Service struct {
	groupRepo      repository.GroupRepository
	membershipRepo repository.MembershipRepository
	intakeRepo     repository.IntakeRepository
	logger         *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	groupRepo repository.GroupRepository,
	membershipRepo repository.MembershipRepository,
	intakeRepo repository.IntakeRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		intakeRepo:     intakeRepo,
		logger:         logger,
	}
}

// ListGroups は全グループをアクティブメンバー数付きで返す。
func (s *Service) ListGroups(ctx context.Context) ([]repository.GroupWithCount, error) {
	return s.groupRepo.ListWithActiveCounts(ctx)
}

// BuildDocument は指定グループの引き継ぎ資料を組み立てる。
// インテークが見つからない参加者はマッチ理由のみの要約になる。
func (s *Service) BuildDocument(ctx context.Context, groupID string) (*Document, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, model.NewGroupNotFoundError(groupID)
	}

	members, err := s.membershipRepo.ListActiveByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	participants := make([]ParticipantSummary, 0, len(members))
	for _, m := range members {
		summary := ParticipantSummary{
			UserID:      m.UserID,
			MatchReason: m.MatchReason,
		}
		intake, err := s.intakeRepo.FindLatestByUserID(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		if intake != nil {
			if intake.PrimaryConcern != nil {
				summary.PrimaryConcern = *intake.PrimaryConcern
			}
			summary.EmotionalIntensity = intake.EmotionalIntensity
			if intake.SupportGoals != nil {
				summary.SupportGoals = *intake.SupportGoals
			}
		} else {
			s.logger.Warn("active member has no intake record",
				slog.String("user_id", m.UserID),
				slog.String("group_id", groupID))
		}
		participants = append(participants, summary)
	}

	return &Document{
		GroupID:                   group.ID,
		GroupName:                 group.Name,
		GroupTheme:                group.Focus,
		Participants:              participants,
		FullConversationAvailable: true,
	}, nil
}
