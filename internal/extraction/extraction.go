package extraction

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hitoshi/sage/internal/llm"
	"github.com/hitoshi/sage/internal/model"
)

// MinUserTurnsBeforeComplete は自動完了を許可する最小ユーザー発言数。
// 会話初期に推論サービスが強度を既定値で埋めてしまうのを防ぐ。
const MinUserTurnsBeforeComplete = 3

// Extraction は会話から抽出した構造化インテーク。
// nilのフィールドはユーザーがまだ共有していない情報を表す。
type Extraction struct {
	PrimaryConcern       *string
	ContextualBackground *string
	EmotionalIntensity   *int
	LifeImpactAreas      []string
	SupportGoals         *string
	Availability         *string
}

// Empty は全フィールド未取得の抽出結果を返す。完了判定は必ずfalseになる。
func Empty() Extraction {
	return Extraction{LifeImpactAreas: []string{}}
}

// IsComplete はマッチングに必要な全フィールドが揃っているかを判定する。
func IsComplete(e Extraction) bool {
	if e.PrimaryConcern == nil || strings.TrimSpace(*e.PrimaryConcern) == "" {
		return false
	}
	if e.EmotionalIntensity == nil || *e.EmotionalIntensity < 1 || *e.EmotionalIntensity > 5 {
		return false
	}
	if len(e.LifeImpactAreas) == 0 {
		return false
	}
	if e.SupportGoals == nil || strings.TrimSpace(*e.SupportGoals) == "" {
		return false
	}
	if e.Availability == nil || strings.TrimSpace(*e.Availability) == "" {
		return false
	}
	return true
}

// UserTurnCount は会話中のユーザー発言数を数える。
func UserTurnCount(turns []model.ChatTurn) int {
	n := 0
	for _, t := range turns {
		if t.Role == model.RoleUser {
			n++
		}
	}
	return n
}

// normalize は推論サービスの寛容なデコード結果を期待する型に正規化する。
// 空文字列はnil、範囲外の強度はnil、配列でない影響領域は空配列として扱う。
func normalize(raw *llm.IntakeExtraction) Extraction {
	e := Extraction{
		PrimaryConcern:       normalizeText(raw.PrimaryConcern),
		ContextualBackground: normalizeText(raw.ContextualBackground),
		EmotionalIntensity:   normalizeIntensity(raw.EmotionalIntensity),
		LifeImpactAreas:      normalizeAreas(raw.LifeImpactAreas),
		SupportGoals:         normalizeText(raw.SupportGoals),
		Availability:         normalizeText(raw.Availability),
	}
	return e
}

func normalizeText(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// normalizeIntensity は数値・数値文字列のどちらで返されても受け入れる。
func normalizeIntensity(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n int
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		n = int(f)
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		n = parsed
	}
	if n < 1 || n > 5 {
		return nil
	}
	return &n
}

func normalizeAreas(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var areas []string
	if err := json.Unmarshal(raw, &areas); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		if strings.TrimSpace(a) != "" {
			out = append(out, a)
		}
	}
	return out
}
