package model

import "time"

// Intake は会話から抽出された構造化インテークを表す。
// 各フィールドはユーザーが明示的に述べた場合のみ値を持ち、
// 述べていない場合はnil（未取得）として扱う。推測で埋めることはない。
type Intake struct {
	ID                   string
	UserID               string
	ChatSessionID        string
	PrimaryConcern       *string
	ContextualBackground *string
	EmotionalIntensity   *int
	LifeImpactAreas      []string
	SupportGoals         *string
	Availability         *string
	GroupID              *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
