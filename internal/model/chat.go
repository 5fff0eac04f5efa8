// Package model はドメインモデルを定義する。
package model

import "time"

// Role はチャットターンの発話者を表す。
type Role string

const (
	// RoleUser はユーザーの発話。
	RoleUser Role = "user"
	// RoleAssistant はアシスタントの発話。
	RoleAssistant Role = "assistant"
)

// ChatSession は1回のインテーク会話を表す。
// ユーザーごとに未完了のセッションは高々1つ。
// 新しいメッセージは最新の未完了セッションに追加され、
// 未完了セッションが存在しない場合は新規作成される。
type ChatSession struct {
	ID        string
	UserID    string
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatTurn はチャットセッション内の1メッセージを表す。
// 作成後は不変で、created_at順に並ぶ。
type ChatTurn struct {
	ID            string
	ChatSessionID string
	Role          Role
	Content       string
	CreatedAt     time.Time
}
