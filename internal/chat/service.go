// Package chat はインテーク会話のオーケストレーションを行う。
// 受信メッセージごとに危機検査→応答生成→ターン記録→抽出→完了判定→
// グループ割り当ての順に調整する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sage/internal/dialogue"
	"github.com/hitoshi/sage/internal/extraction"
	"github.com/hitoshi/sage/internal/model"
	"github.com/hitoshi/sage/internal/repository"
	"github.com/hitoshi/sage/internal/security"
)

// completionReply はインテーク完了時にアシスタント応答を置き換える定型文。
const completionReply = "We have enough information. We're finding a support group for you…"

// CrisisChecker は危機検査の操作。
type CrisisChecker interface {
	Check(message string) bool
	Response() string
}

// Responder は応答生成の操作。
type Responder interface {
	Reply(ctx context.Context, history []model.ChatTurn, userMessage string) dialogue.Result
}

// Extractor は構造化インテーク抽出の操作。
type Extractor interface {
	Extract(ctx context.Context, turns []model.ChatTurn) extraction.Extraction
}

// Matcher はグループ割り当ての操作。
type Matcher interface {
	Assign(ctx context.Context, userID string, profile extraction.Extraction) (*model.Group, string, error)
}

// MetricsCollector は会話処理の計測インターフェース。
type MetricsCollector interface {
	RecordCrisisTriggered()
	RecordIntakeCompleted()
}

// SubmitResult はメッセージ送信の結果と完了シグナルを表す。
// 完了シグナルは送信と同期して返され、別途ポーリングさせることはない。
type SubmitResult struct {
	Reply          string
	TurnID         string
	Source         string
	SourceErr      string
	Crisis         bool
	IntakeComplete bool
	Group          *model.Group
	MatchReason    string
}

// FinalizeResult は明示的な完了操作の結果を表す。
type FinalizeResult struct {
	Status    string
	SessionID string
	GroupID   string
}

// RestartResult は再開操作の結果を表す。
type RestartResult struct {
	Status  string
	Message string
}

// Service はインテーク会話のオーケストレーター。
type Service struct {
	sessionRepo repository.ChatSessionRepository
	turnRepo    repository.TurnRepository
	intakeRepo  repository.IntakeRepository
	crisis      CrisisChecker
	responder   Responder
	extractor   Extractor
	matcher     Matcher
	sanitizer   security.MessageSanitizerService
	metrics     MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	sessionRepo repository.ChatSessionRepository,
	turnRepo repository.TurnRepository,
	intakeRepo repository.IntakeRepository,
	crisis CrisisChecker,
	responder Responder,
	extractor Extractor,
	matcher Matcher,
	sanitizer security.MessageSanitizerService,
	metrics MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		turnRepo:    turnRepo,
		intakeRepo:  intakeRepo,
		crisis:      crisis,
		responder:   responder,
		extractor:   extractor,
		matcher:     matcher,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// SubmitMessage はユーザーのメッセージを処理し、応答と完了シグナルを返す。
// 危機表現を検出した場合は固定応答を返し、抽出・マッチングは行わない。
// ターンの記録が最優先の副作用であり、記録後の抽出・割り当ての失敗は
// ログに残すだけで応答は返す。
func (s *Service) SubmitMessage(ctx context.Context, userID, message string) (*SubmitResult, error) {
	message = s.sanitizer.Sanitize(message)
	if message == "" {
		return nil, model.NewEmptyMessageError()
	}

	if s.crisis.Check(message) {
		return s.handleCrisis(ctx, userID, message)
	}

	session, err := s.getOrCreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.turnRepo.ListBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	reply := s.responder.Reply(ctx, history, message)
	userTurn, assistantTurn := newTurnPair(session.ID, message, reply.Reply)
	if err := s.turnRepo.CreatePair(ctx, userTurn, assistantTurn); err != nil {
		return nil, err
	}

	result := &SubmitResult{
		Reply:     reply.Reply,
		TurnID:    assistantTurn.ID,
		Source:    reply.Source,
		SourceErr: reply.Err,
	}
	if session.Completed {
		return result, nil
	}

	allTurns := append(append([]model.ChatTurn{}, history...), *userTurn, *assistantTurn)
	s.tryComplete(ctx, userID, session, allTurns, result)
	return result, nil
}

// handleCrisis は危機検出時の処理。固定応答をターンとして記録し、
// セッションは未完了のまま維持する。
func (s *Service) handleCrisis(ctx context.Context, userID, message string) (*SubmitResult, error) {
	reply := s.crisis.Response()
	session, err := s.getOrCreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	userTurn, assistantTurn := newTurnPair(session.ID, message, reply)
	if err := s.turnRepo.CreatePair(ctx, userTurn, assistantTurn); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCrisisTriggered()
	}
	s.logger.Info("crisis response returned", slog.String("user_id", userID))
	return &SubmitResult{
		Reply:  reply,
		TurnID: assistantTurn.ID,
		Crisis: true,
	}, nil
}

// tryComplete は会話全体から抽出を行い、完了条件を満たせば
// インテーク保存・セッション完了・グループ割り当てまで進める。
// 失敗してもresultの応答は維持し、エラーは返さない。
func (s *Service) tryComplete(ctx context.Context, userID string, session *model.ChatSession, turns []model.ChatTurn, result *SubmitResult) {
	userTurns := extraction.UserTurnCount(turns)
	profile := s.extractor.Extract(ctx, turns)

	// 会話初期の強度は推論サービスの既定値である可能性があるため信用しない
	if userTurns < extraction.MinUserTurnsBeforeComplete {
		profile.EmotionalIntensity = nil
	}

	s.logger.Info("extracted intake profile",
		slog.String("user_id", userID),
		slog.Int("user_turns", userTurns),
		slog.Bool("complete", extraction.IsComplete(profile)))

	if userTurns < extraction.MinUserTurnsBeforeComplete || !extraction.IsComplete(profile) {
		return
	}

	group, reason, err := s.completeIntake(ctx, userID, session.ID, profile)
	if err != nil {
		s.logger.Error("intake completion failed, turns are preserved",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return
	}

	result.Reply = completionReply
	result.IntakeComplete = true
	result.Group = group
	result.MatchReason = reason
	s.logger.Info("intake auto-completed and user assigned to group",
		slog.String("user_id", userID),
		slog.String("group_id", group.ID))
}

// completeIntake はインテーク保存・セッション完了・グループ割り当てを行う。
func (s *Service) completeIntake(ctx context.Context, userID, sessionID string, profile extraction.Extraction) (*model.Group, string, error) {
	now := time.Now()
	intake := &model.Intake{
		ID:                   uuid.NewString(),
		UserID:               userID,
		ChatSessionID:        sessionID,
		PrimaryConcern:       profile.PrimaryConcern,
		ContextualBackground: profile.ContextualBackground,
		EmotionalIntensity:   profile.EmotionalIntensity,
		LifeImpactAreas:      profile.LifeImpactAreas,
		SupportGoals:         profile.SupportGoals,
		Availability:         profile.Availability,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.intakeRepo.CreateAndCompleteSession(ctx, intake); err != nil {
		return nil, "", err
	}

	group, reason, err := s.matcher.Assign(ctx, userID, profile)
	if err != nil {
		return nil, "", err
	}
	if err := s.intakeRepo.SetGroup(ctx, intake.ID, group.ID); err != nil {
		return nil, "", err
	}

	if s.metrics != nil {
		s.metrics.RecordIntakeCompleted()
	}
	return group, reason, nil
}

// History はユーザーの最新セッションの全ターンを時系列順で返す。
// セッションが存在しない場合は空のスライスを返す。
func (s *Service) History(ctx context.Context, userID string) ([]model.ChatTurn, error) {
	session, err := s.sessionRepo.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return []model.ChatTurn{}, nil
	}
	return s.turnRepo.ListBySessionID(ctx, session.ID)
}

// Finalize は明示的にインテークを完了させる。
// 発言数の下限は適用せず、その時点の会話から抽出して割り当てまで進める。
func (s *Service) Finalize(ctx context.Context, userID string) (*FinalizeResult, error) {
	session, err := s.sessionRepo.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}
	if session.Completed {
		return &FinalizeResult{Status: "already_completed", SessionID: session.ID}, nil
	}

	turns, err := s.turnRepo.ListBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	profile := s.extractor.Extract(ctx, turns)

	group, _, err := s.completeIntake(ctx, userID, session.ID, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize intake: %w", err)
	}

	s.logger.Info("intake completed and user assigned to group",
		slog.String("user_id", userID),
		slog.String("group_id", group.ID))
	return &FinalizeResult{Status: "completed", SessionID: session.ID, GroupID: group.ID}, nil
}

// Restart は完了済みセッションを未完了に戻す。
// ターン・インテーク・アクティブなメンバーシップは消去される。
// 完了済みセッションが存在しない場合は状態のみを返し、エラーにはしない。
func (s *Service) Restart(ctx context.Context, userID string) (*RestartResult, error) {
	session, err := s.sessionRepo.FindLatestCompletedByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &RestartResult{
			Status:  "no_completed_session",
			Message: "No completed session to restart",
		}, nil
	}

	if err := s.sessionRepo.ResetCompleted(ctx, session.ID, userID); err != nil {
		return nil, err
	}

	s.logger.Info("chat restarted, turns and intake cleared",
		slog.String("user_id", userID),
		slog.String("chat_session_id", session.ID))
	return &RestartResult{Status: "ok", Message: "Session restarted"}, nil
}

// CloseOpenSession は未完了の最新セッションをインテークなしで完了状態にする。
// ログアウト時などに呼び、次のメッセージが新しいセッションから始まるようにする。
// 未完了セッションが存在しない場合は何もしない。
func (s *Service) CloseOpenSession(ctx context.Context, userID string) error {
	session, err := s.sessionRepo.FindLatestByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if session == nil || session.Completed {
		return nil
	}
	if err := s.sessionRepo.MarkCompleted(ctx, session.ID); err != nil {
		return err
	}
	s.logger.Info("open chat session closed without intake",
		slog.String("user_id", userID),
		slog.String("chat_session_id", session.ID))
	return nil
}

// getOrCreateSession は最新の未完了セッションを返す。
// 存在しない、または最新が完了済みの場合は新規作成する。
func (s *Service) getOrCreateSession(ctx context.Context, userID string) (*model.ChatSession, error) {
	session, err := s.sessionRepo.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session != nil && !session.Completed {
		return session, nil
	}

	now := time.Now()
	session = &model.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("created new chat session",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID))
	return session, nil
}

// newTurnPair はユーザー発言とアシスタント応答のターンを生成する。
// アシスタント側のcreated_atを僅かに後ろにずらし、時系列順を安定させる。
func newTurnPair(sessionID, userMessage, assistantReply string) (*model.ChatTurn, *model.ChatTurn) {
	now := time.Now()
	userTurn := &model.ChatTurn{
		ID:            uuid.NewString(),
		ChatSessionID: sessionID,
		Role:          model.RoleUser,
		Content:       userMessage,
		CreatedAt:     now,
	}
	assistantTurn := &model.ChatTurn{
		ID:            uuid.NewString(),
		ChatSessionID: sessionID,
		Role:          model.RoleAssistant,
		Content:       assistantReply,
		CreatedAt:     now.Add(time.Microsecond),
	}
	return userTurn, assistantTurn
}
