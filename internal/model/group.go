package model

import "time"

// Group はサポートグループ（フォーカスグループ）を表す。
// focusキーで一意に識別される固定カタログで、存在しない場合は
// 冪等に作成される。このシステムがグループを削除することはない。
type Group struct {
	ID        string
	Name      string
	Focus     string
	CreatedAt time.Time
}

// MembershipStatus はグループメンバーシップの状態を表す。
type MembershipStatus string

const (
	// MembershipStatusActive は参加中の状態。
	MembershipStatusActive MembershipStatus = "active"
	// MembershipStatusCompleted はグループ参加を完了した状態。
	MembershipStatusCompleted MembershipStatus = "completed"
	// MembershipStatusWithdrawn は脱退した状態。
	MembershipStatusWithdrawn MembershipStatus = "withdrawn"
)

// Membership はユーザーとグループの参加関係を表す。
// ユーザーごとにactiveなメンバーシップは高々1つ（DBの部分一意インデックスで保証）。
type Membership struct {
	ID          string
	GroupID     string
	UserID      string
	Status      MembershipStatus
	MatchReason string
	JoinedAt    time.Time
}
