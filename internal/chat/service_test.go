package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/sage/internal/dialogue"
	"github.com/hitoshi/sage/internal/extraction"
	"github.com/hitoshi/sage/internal/model"
)

// --- モック ---

type mockChatSessionRepo struct {
	findLatestFunc          func(ctx context.Context, userID string) (*model.ChatSession, error)
	findLatestCompletedFunc func(ctx context.Context, userID string) (*model.ChatSession, error)
	createFunc              func(ctx context.Context, session *model.ChatSession) error
	markCompletedFunc       func(ctx context.Context, id string) error
	resetCompletedFunc      func(ctx context.Context, sessionID, userID string) error
}

func (m *mockChatSessionRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.ChatSession, error) {
	if m.findLatestFunc != nil {
		return m.findLatestFunc(ctx, userID)
	}
	return nil, nil
}
func (m *mockChatSessionRepo) FindLatestCompletedByUserID(ctx context.Context, userID string) (*model.ChatSession, error) {
	if m.findLatestCompletedFunc != nil {
		return m.findLatestCompletedFunc(ctx, userID)
	}
	return nil, nil
}
func (m *mockChatSessionRepo) Create(ctx context.Context, session *model.ChatSession) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	return nil
}
func (m *mockChatSessionRepo) MarkCompleted(ctx context.Context, id string) error {
	if m.markCompletedFunc != nil {
		return m.markCompletedFunc(ctx, id)
	}
	return nil
}
func (m *mockChatSessionRepo) ResetCompleted(ctx context.Context, sessionID, userID string) error {
	if m.resetCompletedFunc != nil {
		return m.resetCompletedFunc(ctx, sessionID, userID)
	}
	return nil
}

type mockTurnRepo struct {
	listFunc       func(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	createPairFunc func(ctx context.Context, userTurn, assistantTurn *model.ChatTurn) error
}

func (m *mockTurnRepo) ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, sessionID)
	}
	return []model.ChatTurn{}, nil
}
func (m *mockTurnRepo) CreatePair(ctx context.Context, userTurn, assistantTurn *model.ChatTurn) error {
	if m.createPairFunc != nil {
		return m.createPairFunc(ctx, userTurn, assistantTurn)
	}
	return nil
}

type mockIntakeRepo struct {
	createAndCompleteFunc func(ctx context.Context, intake *model.Intake) error
	setGroupFunc          func(ctx context.Context, intakeID, groupID string) error
}

func (m *mockIntakeRepo) CreateAndCompleteSession(ctx context.Context, intake *model.Intake) error {
	if m.createAndCompleteFunc != nil {
		return m.createAndCompleteFunc(ctx, intake)
	}
	return nil
}
func (m *mockIntakeRepo) SetGroup(ctx context.Context, intakeID, groupID string) error {
	if m.setGroupFunc != nil {
		return m.setGroupFunc(ctx, intakeID, groupID)
	}
	return nil
}
func (m *mockIntakeRepo) FindLatestByUserID(ctx context.Context, userID string) (*model.Intake, error) {
	return nil, nil
}
func (m *mockIntakeRepo) FindByChatSessionID(ctx context.Context, sessionID string) (*model.Intake, error) {
	return nil, nil
}

type mockCrisis struct {
	checkFunc func(message string) bool
}

func (m *mockCrisis) Check(message string) bool {
	if m.checkFunc != nil {
		return m.checkFunc(message)
	}
	return false
}
func (m *mockCrisis) Response() string { return "Please reach out for help. Call 988." }

type mockResponder struct {
	replyFunc func(ctx context.Context, history []model.ChatTurn, userMessage string) dialogue.Result
}

func (m *mockResponder) Reply(ctx context.Context, history []model.ChatTurn, userMessage string) dialogue.Result {
	if m.replyFunc != nil {
		return m.replyFunc(ctx, history, userMessage)
	}
	return dialogue.Result{Reply: "Tell me more.", Source: dialogue.SourceGroq}
}

type mockExtractorSvc struct {
	extractFunc func(ctx context.Context, turns []model.ChatTurn) extraction.Extraction
	calls       int
}

func (m *mockExtractorSvc) Extract(ctx context.Context, turns []model.ChatTurn) extraction.Extraction {
	m.calls++
	if m.extractFunc != nil {
		return m.extractFunc(ctx, turns)
	}
	return extraction.Empty()
}

type mockMatcherSvc struct {
	assignFunc func(ctx context.Context, userID string, profile extraction.Extraction) (*model.Group, string, error)
	calls      int
}

func (m *mockMatcherSvc) Assign(ctx context.Context, userID string, profile extraction.Extraction) (*model.Group, string, error) {
	m.calls++
	if m.assignFunc != nil {
		return m.assignFunc(ctx, userID, profile)
	}
	return &model.Group{ID: "g-1", Name: "Anxiety & Stress Management", Focus: "anxiety_stress_management"}, "reason", nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(message string) string { return strings.TrimSpace(message) }

type mockChatMetrics struct {
	crisisCount   int
	completeCount int
}

func (m *mockChatMetrics) RecordCrisisTriggered() { m.crisisCount++ }
func (m *mockChatMetrics) RecordIntakeCompleted() { m.completeCount++ }

type deps struct {
	sessions  *mockChatSessionRepo
	turns     *mockTurnRepo
	intakes   *mockIntakeRepo
	crisis    *mockCrisis
	responder *mockResponder
	extractor *mockExtractorSvc
	matcher   *mockMatcherSvc
	metrics   *mockChatMetrics
}

func newTestDeps() *deps {
	return &deps{
		sessions:  &mockChatSessionRepo{},
		turns:     &mockTurnRepo{},
		intakes:   &mockIntakeRepo{},
		crisis:    &mockCrisis{},
		responder: &mockResponder{},
		extractor: &mockExtractorSvc{},
		matcher:   &mockMatcherSvc{},
		metrics:   &mockChatMetrics{},
	}
}

func (d *deps) service() *Service {
	return NewService(
		d.sessions, d.turns, d.intakes,
		d.crisis, d.responder, d.extractor, d.matcher,
		passthroughSanitizer{}, d.metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func completeProfile() extraction.Extraction {
	return extraction.Extraction{
		PrimaryConcern:     strPtr("work stress"),
		EmotionalIntensity: intPtr(4),
		LifeImpactAreas:    []string{"work", "sleep"},
		SupportGoals:       strPtr("cope better"),
		Availability:       strPtr("weekday evenings"),
	}
}

// 既存のターンを会話としてまとめて返すリストモックを組み立てる
func priorTurns(userCount int) []model.ChatTurn {
	turns := []model.ChatTurn{}
	base := time.Now().Add(-time.Hour)
	for i := 0; i < userCount; i++ {
		turns = append(turns,
			model.ChatTurn{ID: "u", Role: model.RoleUser, Content: "msg", CreatedAt: base},
			model.ChatTurn{ID: "a", Role: model.RoleAssistant, Content: "re", CreatedAt: base.Add(time.Second)},
		)
	}
	return turns
}

func TestSubmitMessage_EmptyMessage(t *testing.T) {
	d := newTestDeps()
	s := d.service()

	_, err := s.SubmitMessage(context.Background(), "user-1", "   ")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyMessage {
		t.Fatalf("err = %v, want EMPTY_MESSAGE", err)
	}
}

func TestSubmitMessage_CrisisShortCircuits(t *testing.T) {
	d := newTestDeps()
	d.crisis.checkFunc = func(message string) bool { return true }
	var recorded []*model.ChatTurn
	d.turns.createPairFunc = func(_ context.Context, u, a *model.ChatTurn) error {
		recorded = append(recorded, u, a)
		return nil
	}
	s := d.service()

	result, err := s.SubmitMessage(context.Background(), "user-1", "I want to end my life")
	if err != nil {
		t.Fatalf("SubmitMessage error = %v", err)
	}
	if !result.Crisis {
		t.Error("result.Crisis = false, want true")
	}
	if !strings.Contains(result.Reply, "988") {
		t.Errorf("Reply = %q, want crisis line", result.Reply)
	}
	if result.IntakeComplete {
		t.Error("IntakeComplete = true, want false")
	}
	// 抽出・マッチングは呼ばれない
	if d.extractor.calls != 0 || d.matcher.calls != 0 {
		t.Errorf("extractor/matcher calls = %d/%d, want 0/0", d.extractor.calls, d.matcher.calls)
	}
	// ターンのペアは記録され、セッションは未完了のまま
	if len(recorded) != 2 {
		t.Errorf("recorded %d turns, want 2", len(recorded))
	}
	if d.metrics.crisisCount != 1 {
		t.Errorf("crisisCount = %d, want 1", d.metrics.crisisCount)
	}
}

func TestSubmitMessage_ThirdTurnCompletes(t *testing.T) {
	d := newTestDeps()
	session := &model.ChatSession{ID: "s-1", UserID: "user-1"}
	d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
		return session, nil
	}
	// 既存2ユーザーターン + 今回の送信で3ターン目
	d.turns.listFunc = func(_ context.Context, _ string) ([]model.ChatTurn, error) {
		return priorTurns(2), nil
	}
	d.extractor.extractFunc = func(_ context.Context, turns []model.ChatTurn) extraction.Extraction {
		return completeProfile()
	}
	var savedIntake *model.Intake
	d.intakes.createAndCompleteFunc = func(_ context.Context, intake *model.Intake) error {
		savedIntake = intake
		return nil
	}
	s := d.service()

	result, err := s.SubmitMessage(context.Background(), "user-1", "weekday evenings work for me")
	if err != nil {
		t.Fatalf("SubmitMessage error = %v", err)
	}
	if !result.IntakeComplete {
		t.Fatal("IntakeComplete = false, want true on 3rd user turn")
	}
	if result.Reply != completionReply {
		t.Errorf("Reply = %q, want completion reply", result.Reply)
	}
	if result.Group == nil || result.Group.ID != "g-1" {
		t.Errorf("Group = %+v, want assigned group", result.Group)
	}
	if result.MatchReason == "" {
		t.Error("MatchReason is empty")
	}
	if savedIntake == nil {
		t.Fatal("intake not saved")
	}
	if savedIntake.ChatSessionID != "s-1" {
		t.Errorf("intake.ChatSessionID = %q, want s-1", savedIntake.ChatSessionID)
	}
	if d.metrics.completeCount != 1 {
		t.Errorf("completeCount = %d, want 1", d.metrics.completeCount)
	}
}

func TestSubmitMessage_BelowTurnFloorStaysOpen(t *testing.T) {
	d := newTestDeps()
	session := &model.ChatSession{ID: "s-1", UserID: "user-1"}
	d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
		return session, nil
	}
	// 既存1ユーザーターンのみ（今回で2ターン目）
	d.turns.listFunc = func(_ context.Context, _ string) ([]model.ChatTurn, error) {
		return priorTurns(1), nil
	}
	d.extractor.extractFunc = func(_ context.Context, _ []model.ChatTurn) extraction.Extraction {
		return completeProfile()
	}
	s := d.service()

	result, err := s.SubmitMessage(context.Background(), "user-1", "it's about a 4")
	if err != nil {
		t.Fatalf("SubmitMessage error = %v", err)
	}
	if result.IntakeComplete {
		t.Error("IntakeComplete = true, want false below the user-turn floor")
	}
	if d.matcher.calls != 0 {
		t.Errorf("matcher.calls = %d, want 0", d.matcher.calls)
	}
}

func TestSubmitMessage_IncompleteProfileStaysOpen(t *testing.T) {
	d := newTestDeps()
	session := &model.ChatSession{ID: "s-1", UserID: "user-1"}
	d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
		return session, nil
	}
	d.turns.listFunc = func(_ context.Context, _ string) ([]model.ChatTurn, error) {
		return priorTurns(5), nil
	}
	d.extractor.extractFunc = func(_ context.Context, _ []model.ChatTurn) extraction.Extraction {
		p := completeProfile()
		p.Availability = nil
		return p
	}
	s := d.service()

	result, err := s.SubmitMessage(context.Background(), "user-1", "more context")
	if err != nil {
		t.Fatalf("SubmitMessage error = %v", err)
	}
	if result.IntakeComplete {
		t.Error("IntakeComplete = true, want false for incomplete profile")
	}
}

func TestSubmitMessage_CreatesSessionWhenLatestCompleted(t *testing.T) {
	d := newTestDeps()
	d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
		return &model.ChatSession{ID: "old", UserID: "user-1", Completed: true}, nil
	}
	var created *model.ChatSession
	d.sessions.createFunc = func(_ context.Context, session *model.ChatSession) error {
		created = session
		return nil
	}
	var pairSession string
	d.turns.createPairFunc = func(_ context.Context, u, _ *model.ChatTurn) error {
		pairSession = u.ChatSessionID
		return nil
	}
	s := d.service()

	if _, err := s.SubmitMessage(context.Background(), "user-1", "hello again"); err != nil {
		t.Fatalf("SubmitMessage error = %v", err)
	}
	if created == nil {
		t.Fatal("expected a new session to be created")
	}
	if created.Completed {
		t.Error("new session is completed, want open")
	}
	if pairSession != created.ID {
		t.Errorf("turns recorded on session %q, want new session %q", pairSession, created.ID)
	}
}

func TestSubmitMessage_MatchFailureKeepsReply(t *testing.T) {
	d := newTestDeps()
	session := &model.ChatSession{ID: "s-1", UserID: "user-1"}
	d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
		return session, nil
	}
	d.turns.listFunc = func(_ context.Context, _ string) ([]model.ChatTurn, error) {
		return priorTurns(2), nil
	}
	d.extractor.extractFunc = func(_ context.Context, _ []model.ChatTurn) extraction.Extraction {
		return completeProfile()
	}
	d.matcher.assignFunc = func(_ context.Context, _ string, _ extraction.Extraction) (*model.Group, string, error) {
		return nil, "", errors.New("db down")
	}
	s := d.service()

	result, err := s.SubmitMessage(context.Background(), "user-1", "weekday evenings")
	if err != nil {
		t.Fatalf("SubmitMessage error = %v, want nil (failure after turn recording is logged)", err)
	}
	if result.IntakeComplete {
		t.Error("IntakeComplete = true, want false when assignment failed")
	}
	if result.Reply == completionReply {
		t.Error("Reply is completion text, want normal assistant reply")
	}
}

func TestFinalize(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		d := newTestDeps()
		s := d.service()

		_, err := s.Finalize(context.Background(), "user-1")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSessionNotFound {
			t.Fatalf("err = %v, want SESSION_NOT_FOUND", err)
		}
	})

	t.Run("already completed", func(t *testing.T) {
		d := newTestDeps()
		d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
			return &model.ChatSession{ID: "s-1", Completed: true}, nil
		}
		s := d.service()

		result, err := s.Finalize(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Finalize error = %v", err)
		}
		if result.Status != "already_completed" {
			t.Errorf("Status = %q, want already_completed", result.Status)
		}
	})

	t.Run("forces completion without turn floor", func(t *testing.T) {
		d := newTestDeps()
		d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
			return &model.ChatSession{ID: "s-1", UserID: "user-1"}, nil
		}
		d.turns.listFunc = func(_ context.Context, _ string) ([]model.ChatTurn, error) {
			return priorTurns(1), nil
		}
		d.extractor.extractFunc = func(_ context.Context, _ []model.ChatTurn) extraction.Extraction {
			return completeProfile()
		}
		s := d.service()

		result, err := s.Finalize(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Finalize error = %v", err)
		}
		if result.Status != "completed" {
			t.Errorf("Status = %q, want completed", result.Status)
		}
		if result.GroupID != "g-1" {
			t.Errorf("GroupID = %q, want g-1", result.GroupID)
		}
		if d.matcher.calls != 1 {
			t.Errorf("matcher.calls = %d, want 1", d.matcher.calls)
		}
	})
}

func TestRestart(t *testing.T) {
	t.Run("no completed session", func(t *testing.T) {
		d := newTestDeps()
		resetCalled := false
		d.sessions.resetCompletedFunc = func(_ context.Context, _, _ string) error {
			resetCalled = true
			return nil
		}
		s := d.service()

		result, err := s.Restart(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Restart error = %v", err)
		}
		if result.Status != "no_completed_session" {
			t.Errorf("Status = %q, want no_completed_session", result.Status)
		}
		if resetCalled {
			t.Error("ResetCompleted called without a completed session")
		}
	})

	t.Run("resets completed session", func(t *testing.T) {
		d := newTestDeps()
		d.sessions.findLatestCompletedFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
			return &model.ChatSession{ID: "s-1", UserID: "user-1", Completed: true}, nil
		}
		var resetSession, resetUser string
		d.sessions.resetCompletedFunc = func(_ context.Context, sessionID, userID string) error {
			resetSession, resetUser = sessionID, userID
			return nil
		}
		s := d.service()

		result, err := s.Restart(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Restart error = %v", err)
		}
		if result.Status != "ok" {
			t.Errorf("Status = %q, want ok", result.Status)
		}
		if resetSession != "s-1" || resetUser != "user-1" {
			t.Errorf("ResetCompleted(%q, %q), want (s-1, user-1)", resetSession, resetUser)
		}
	})
}

func TestCloseOpenSession(t *testing.T) {
	t.Run("closes open session", func(t *testing.T) {
		d := newTestDeps()
		d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
			return &model.ChatSession{ID: "s-1", UserID: "user-1"}, nil
		}
		var marked string
		d.sessions.markCompletedFunc = func(_ context.Context, id string) error {
			marked = id
			return nil
		}
		s := d.service()

		if err := s.CloseOpenSession(context.Background(), "user-1"); err != nil {
			t.Fatalf("CloseOpenSession error = %v", err)
		}
		if marked != "s-1" {
			t.Errorf("MarkCompleted(%q), want s-1", marked)
		}
	})

	t.Run("no-op without open session", func(t *testing.T) {
		d := newTestDeps()
		d.sessions.findLatestFunc = func(_ context.Context, _ string) (*model.ChatSession, error) {
			return &model.ChatSession{ID: "s-1", Completed: true}, nil
		}
		d.sessions.markCompletedFunc = func(_ context.Context, _ string) error {
			t.Fatal("MarkCompleted must not be called for completed session")
			return nil
		}
		s := d.service()

		if err := s.CloseOpenSession(context.Background(), "user-1"); err != nil {
			t.Fatalf("CloseOpenSession error = %v", err)
		}
	})
}

func TestHistory_NoSession(t *testing.T) {
	d := newTestDeps()
	s := d.service()

	turns, err := s.History(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("History error = %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("turns = %v, want empty slice", turns)
	}
}
