package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/sage/internal/llm"
	"github.com/hitoshi/sage/internal/model"
)

const (
	maxAttempts         = 3
	retryBaseDelay      = time.Second
	transcriptTurnLimit = 20
)

// LLMExtractor は抽出に必要な推論クライアントの操作。
type LLMExtractor interface {
	ExtractIntake(ctx context.Context, transcript string) (*llm.IntakeExtraction, error)
	Configured() bool
}

// Service は会話全体から構造化インテークを抽出する。
// 一時的障害は指数バックオフで再試行し、それでも失敗した場合や
// 未設定の場合は全フィールド未取得の結果を返す。エラーは返さない。
type Service struct {
	llm         LLMExtractor
	logger      *slog.Logger
	isTransient func(error) bool
	sleep       func(ctx context.Context, d time.Duration)
}

// NewService はServiceを生成する。
func NewService(extractor LLMExtractor, logger *slog.Logger) *Service {
	return &Service{
		llm:         extractor,
		logger:      logger,
		isTransient: llm.IsTransient,
		sleep:       sleepContext,
	}
}

// Extract は会話から構造化インテークを抽出する。
// 会話が空・推論未設定・全試行失敗のいずれでも安全な未取得結果に落ちる。
func (s *Service) Extract(ctx context.Context, turns []model.ChatTurn) Extraction {
	if len(turns) == 0 {
		return Empty()
	}
	if !s.llm.Configured() {
		s.logger.Warn("extraction skipped: llm not configured")
		return Empty()
	}

	transcript := buildTranscript(turns)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := s.llm.ExtractIntake(ctx, transcript)
		if err == nil {
			return normalize(raw)
		}
		if !s.isTransient(err) || attempt == maxAttempts {
			s.logger.Warn("extraction failed, returning incomplete result",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return Empty()
		}
		delay := retryBaseDelay * time.Duration(1<<(attempt-1))
		s.logger.Warn("extraction transient error, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		s.sleep(ctx, delay)
	}
	return Empty()
}

// buildTranscript は直近の発言を「ROLE: 本文」形式で連結する。
func buildTranscript(turns []model.ChatTurn) string {
	if len(turns) > transcriptTurnLimit {
		turns = turns[len(turns)-transcriptTurnLimit:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), t.Content))
	}
	return strings.Join(lines, "\n")
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
