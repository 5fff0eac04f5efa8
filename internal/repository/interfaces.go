// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/sage/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// ユーザーの作成は外部のアイデンティティ基盤が行うため参照のみを提供する。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ChatSessionRepository はインテーク会話セッションの永続化インターフェース。
type ChatSessionRepository interface {
	// FindLatestByUserID はユーザーの最新のチャットセッションを取得する。
	// 完了状態は問わない。見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.ChatSession, error)

	// FindLatestCompletedByUserID はユーザーの最新の完了済みセッションを取得する。
	// 見つからない場合はnilを返す。
	FindLatestCompletedByUserID(ctx context.Context, userID string) (*model.ChatSession, error)

	// Create はチャットセッションを作成する。
	Create(ctx context.Context, session *model.ChatSession) error

	// MarkCompleted はセッションを完了状態にする。
	MarkCompleted(ctx context.Context, id string) error

	// ResetCompleted はセッションを未完了に戻し、関連するターン・インテーク・
	// アクティブなメンバーシップを同一トランザクションで消去する。
	ResetCompleted(ctx context.Context, sessionID, userID string) error
}

// TurnRepository は会話ターンの永続化インターフェース。ターンは作成後不変。
type TurnRepository interface {
	// ListBySessionID はセッションの全ターンをcreated_at昇順で取得する。
	ListBySessionID(ctx context.Context, sessionID string) ([]model.ChatTurn, error)

	// CreatePair はユーザー発言とアシスタント応答を同一トランザクションで記録し、
	// 作成したアシスタント側のターンを返す。
	CreatePair(ctx context.Context, userTurn, assistantTurn *model.ChatTurn) error
}

// IntakeRepository は抽出済みインテークの永続化インターフェース。
type IntakeRepository interface {
	// CreateAndCompleteSession はインテークの保存とセッションの完了を
	// 同一トランザクションで行う。
	CreateAndCompleteSession(ctx context.Context, intake *model.Intake) error

	// SetGroup はインテークに割り当て先グループを記録する。
	SetGroup(ctx context.Context, intakeID, groupID string) error

	// FindLatestByUserID はユーザーの最新のインテークを取得する。
	// 見つからない場合はnilを返す。
	FindLatestByUserID(ctx context.Context, userID string) (*model.Intake, error)

	// FindByChatSessionID はセッションに紐づくインテークを取得する。
	// 見つからない場合はnilを返す。
	FindByChatSessionID(ctx context.Context, sessionID string) (*model.Intake, error)
}

// GroupRepository はフォーカスグループカタログの永続化インターフェース。
type GroupRepository interface {
	// EnsureDefaults は既定のグループカタログをfocusキーで冪等に作成する。
	EnsureDefaults(ctx context.Context, groups []model.Group) error

	// ListAll は全グループをname昇順で取得する。
	ListAll(ctx context.Context) ([]model.Group, error)

	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)

	// FindByFocus はfocusキーでグループを検索する。見つからない場合はnilを返す。
	FindByFocus(ctx context.Context, focus string) (*model.Group, error)

	// FindFirst はカタログの先頭のグループを取得する。空の場合はnilを返す。
	FindFirst(ctx context.Context) (*model.Group, error)

	// ListWithActiveCounts は全グループをアクティブメンバー数付きで取得する。
	ListWithActiveCounts(ctx context.Context) ([]GroupWithCount, error)
}

// MembershipRepository はグループメンバーシップの永続化インターフェース。
type MembershipRepository interface {
	// ReplaceActive は既存のアクティブなメンバーシップを脱退させ、
	// 新しいアクティブなメンバーシップを同一トランザクションで作成する。
	// 同一ユーザーへの再実行後もアクティブはちょうど1件になる。
	ReplaceActive(ctx context.Context, membership *model.Membership) error

	// FindActiveByUserID はユーザーのアクティブなメンバーシップを取得する。
	// 見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.Membership, error)

	// ListActiveByGroupID はグループのアクティブメンバー一覧をjoined_at昇順で取得する。
	ListActiveByGroupID(ctx context.Context, groupID string) ([]model.Membership, error)
}

// GroupWithCount はグループとアクティブメンバー数を結合した構造体。
type GroupWithCount struct {
	model.Group
	ActiveMemberCount int
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
