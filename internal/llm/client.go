// Package llm は外部テキスト推論サービス（OpenAI互換API）のクライアントを提供する。
// チャット応答・インテーク抽出・グループマッチングの3種類の呼び出しを扱う。
// APIキーが未設定の場合は一切外部呼び出しを行わず、ErrNotConfiguredを返す。
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hitoshi/sage/internal/model"
)

const (
	// chatHistoryLimit はチャット応答に渡す直近ターン数の上限。
	chatHistoryLimit = 10
	// maxChatTokens はチャット応答の最大トークン数。
	maxChatTokens = 300
	// maxExtractTokens はインテーク抽出の最大トークン数。
	maxExtractTokens = 400
	// maxMatchTokens はグループマッチングの最大トークン数。
	maxMatchTokens = 200
)

// Config はLLMクライアントの設定を保持する。
type Config struct {
	// APIKey が空の場合、クライアントは未設定として動作する。
	APIKey string
	// BaseURL はOpenAI互換エンドポイント。空の場合はOpenAI本体を使用する。
	BaseURL string
	// Model は使用するモデル識別子。
	Model string
	// Provider は出所タグに使用するバックエンド名（groq / openai）。
	Provider string
	// Timeout は1回の推論呼び出しに適用する上限時間。
	// タイムアウトは一時的障害として扱われる。
	Timeout time.Duration
}

// Recorder はLLM呼び出しのメトリクス記録インターフェース。
type Recorder interface {
	RecordLLMRequest(kind, outcome string)
	RecordLLMLatency(kind string, duration time.Duration)
}

// Client は外部推論サービスへのクライアント。
type Client struct {
	api *openai.Client
	cfg Config
	rec Recorder
}

// New はClientを生成する。recはnil可。
// APIキーが空の場合は未設定クライアントを返す（外部呼び出しは行われない）。
// リトライ方針は呼び出し側が制御するため、SDK組み込みのリトライは無効化する。
func New(cfg Config, rec Recorder) *Client {
	c := &Client{cfg: cfg, rec: rec}
	if cfg.APIKey == "" {
		return c
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	api := openai.NewClient(opts...)
	c.api = &api
	return c
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.api != nil
}

// Provider は出所タグ用のバックエンド名を返す。未設定の場合は"mock"。
func (c *Client) Provider() string {
	if !c.Configured() {
		return "mock"
	}
	return c.cfg.Provider
}

// Chat は会話履歴と新しいユーザーメッセージからアシスタント応答を生成する。
// 履歴は直近chatHistoryLimitターンに制限される。
func (c *Client) Chat(ctx context.Context, history []model.ChatTurn, userMessage string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(chatSystemPrompt))
	for _, turn := range history {
		if turn.Role == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(turn.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(userMessage))

	return c.complete(ctx, "chat", openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.cfg.Model),
		Messages:  msgs,
		MaxTokens: openai.Int(maxChatTokens),
	})
}

// IntakeExtraction は抽出呼び出しの生の結果。
// emotional_intensityとlife_impact_areasはモデルが型を揺らすことがあるため
// 生JSONのまま保持し、正規化は呼び出し側で行う。
type IntakeExtraction struct {
	PrimaryConcern       *string         `json:"primary_concern"`
	ContextualBackground *string         `json:"contextual_background"`
	EmotionalIntensity   json.RawMessage `json:"emotional_intensity,omitempty"`
	LifeImpactAreas      json.RawMessage `json:"life_impact_areas,omitempty"`
	SupportGoals         *string         `json:"support_goals"`
	Availability         *string         `json:"availability"`
}

// ExtractIntake は会話トランスクリプトから6フィールドのインテークを抽出する。
// 不正なJSONが返った場合はErrMalformedOutputでラップしたエラーを返す（リトライ対象外）。
func (c *Client) ExtractIntake(ctx context.Context, transcript string) (*IntakeExtraction, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	userMsg := fmt.Sprintf(
		"From this FULL conversation (all turns), extract intake. Preserve any detail the user shared in any turn; use null only for info they never mentioned. Return only valid JSON.\n\nConversation:\n%s",
		transcript,
	)

	raw, err := c.complete(ctx, "extract", openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(userMsg),
		},
		MaxTokens: openai.Int(maxExtractTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, err
	}

	var out IntakeExtraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: invalid extraction JSON: %v", ErrMalformedOutput, err)
	}
	return &out, nil
}

// GroupChoice はマッチング呼び出しの結果。
type GroupChoice struct {
	Focus       string `json:"focus"`
	MatchReason string `json:"match_reason"`
}

// MatchGroup はインテーク要約とグループカタログからグループを1つ選択させる。
// 返されたfocusキーの妥当性検証は呼び出し側の責務。
func (c *Client) MatchGroup(ctx context.Context, intakeSummary, catalog string) (*GroupChoice, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	userMsg := fmt.Sprintf(
		"Intake summary:\n%s\n\nAvailable groups (use exactly one 'focus' key):\n%s",
		intakeSummary, catalog,
	)

	raw, err := c.complete(ctx, "match", openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(matchingSystemPrompt),
			openai.UserMessage(userMsg),
		},
		MaxTokens: openai.Int(maxMatchTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, err
	}

	var out GroupChoice
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: invalid match JSON: %v", ErrMalformedOutput, err)
	}
	return &out, nil
}

// complete は1回のチャット補完を実行し、本文テキストを返す。
// 呼び出しごとにConfigのタイムアウトを適用する。
func (c *Client) complete(ctx context.Context, kind string, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)

	if c.rec != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.rec.RecordLLMRequest(kind, outcome)
		c.rec.RecordLLMLatency(kind, elapsed)
	}

	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", kind, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s completion returned no choices", ErrMalformedOutput, kind)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: %s completion returned empty content", ErrMalformedOutput, kind)
	}
	return text, nil
}
