package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/sage/internal/model"
)

// 応答の出所。クライアントはこれを見てデバッグ表示を切り替える。
const (
	SourceGroq         = "groq"
	SourceOpenAI       = "openai"
	SourceMock         = "mock"
	SourceMockNoKey    = "mock_no_key"
	failedSourceSuffix = "_failed"
)

// fallbackReply は臨床的表現を検出した場合などに返す中立的な定型文。
const fallbackReply = "I'm here to listen and help match you to a group—I can't give clinical advice, but a therapist will work with you once you join. What would you like to share?"

// blockPhrases は応答に含まれていてはならない臨床的表現。
// 部分一致（小文字化した全文に対して）で照合する。
var blockPhrases = []string{
	"diagnosis", "diagnose", "disorder", "medication", "prescribe",
	"you should take", "treatment plan", "therapy technique",
}

// ChatCompleter は会話応答の生成に必要な推論クライアントの操作。
type ChatCompleter interface {
	Chat(ctx context.Context, history []model.ChatTurn, userMessage string) (string, error)
	Configured() bool
	Provider() string
}

// Result は応答本文とその出所を表す。
// Errは推論サービスの呼び出しに失敗した場合のエラーメッセージ（ユーザー向けではない）。
type Result struct {
	Reply  string
	Source string
	Err    string
}

// Responder はユーザー発言への共感的応答を生成する。
// 推論サービスが未設定・失敗の場合はキーワード連動の定型応答に退避し、
// いかなる経路でも臨床的表現を含む応答を返さないことを保証する。
type Responder struct {
	llm    ChatCompleter
	logger *slog.Logger
}

// NewResponder はResponderを生成する。
func NewResponder(llm ChatCompleter, logger *slog.Logger) *Responder {
	return &Responder{llm: llm, logger: logger}
}

// Reply は会話履歴とユーザー発言から次の応答を生成する。
// エラーを返さない。推論の失敗は定型応答への退避で吸収する。
func (r *Responder) Reply(ctx context.Context, history []model.ChatTurn, userMessage string) Result {
	if strings.TrimSpace(userMessage) == "" {
		return Result{Reply: "Could you say a bit more?", Source: SourceMock}
	}

	var res Result
	if !r.llm.Configured() {
		res = Result{Reply: mockReply(userMessage), Source: SourceMockNoKey}
	} else {
		reply, err := r.llm.Chat(ctx, history, userMessage)
		if err != nil {
			r.logger.Warn("chat completion failed, using mock reply",
				slog.String("provider", r.llm.Provider()),
				slog.String("error", err.Error()))
			res = Result{
				Reply:  mockReply(userMessage),
				Source: r.llm.Provider() + failedSourceSuffix,
				Err:    err.Error(),
			}
		} else {
			res = Result{Reply: strings.TrimSpace(reply), Source: r.llm.Provider()}
		}
	}

	if res.Reply == "" {
		res.Reply = fallbackReply
		return res
	}
	if phrase, blocked := blockedOutput(res.Reply); blocked {
		r.logger.Warn("blocked reply containing clinical language", slog.String("phrase", phrase))
		res.Reply = fallbackReply
	}
	return res
}

// blockedOutput は応答に臨床的表現が含まれるかを判定し、一致した語句を返す。
func blockedOutput(reply string) (string, bool) {
	lower := strings.ToLower(reply)
	for _, phrase := range blockPhrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// mockReply はAPIキー未設定時のデモ用定型応答。
// 直前の発言のキーワードからインテークの次の質問を選ぶ。
func mockReply(userMessage string) string {
	lower := strings.ToLower(userMessage)
	switch {
	case strings.Contains(lower, "anxiety") || strings.Contains(lower, "stressed"):
		return "Thanks for sharing. How would you rate how much this affects you day to day, from 1 (a little) to 5 (a lot)?"
	case strings.ContainsAny(userMessage, "12345"):
		return "That helps. What areas of life are most affected—for example work, sleep, or relationships?"
	case strings.Contains(lower, "work") || strings.Contains(lower, "sleep") || strings.Contains(lower, "relationship"):
		return "Got it. What would you most like to get from group support?"
	case strings.Contains(lower, "goal") || strings.Contains(lower, "support") || strings.Contains(lower, "help"):
		return "When are you generally available for a weekly session—e.g. weekday evenings or weekends?"
	default:
		return "Thank you. Can you tell me a bit more about what's been on your mind lately?"
	}
}
