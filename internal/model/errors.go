package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, matching, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmptyMessage       = "EMPTY_MESSAGE"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeGroupCatalogEmpty  = "GROUP_CATALOG_EMPTY"
	ErrCodeGroupNotFound      = "GROUP_NOT_FOUND"
	ErrCodeIntakeNotFound     = "INTAKE_NOT_FOUND"
	ErrCodeMembershipNotFound = "MEMBERSHIP_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewEmptyMessageError は空メッセージエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "Message cannot be empty.",
		Category: "validation",
		Action:   "Please enter a message and try again.",
	}
}

// NewSessionNotFoundError はチャットセッション未検出エラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "No chat session found.",
		Category: "chat",
		Action:   "Send a message to start a conversation first.",
	}
}

// NewGroupCatalogEmptyError はグループカタログが空の場合のエラーを生成する。
// カタログが存在しない状態でのグループ割り当ては不変条件違反として扱う。
func NewGroupCatalogEmptyError() *APIError {
	return &APIError{
		Code:     ErrCodeGroupCatalogEmpty,
		Message:  "No focus groups are available for matching.",
		Category: "matching",
		Action:   "Please contact support.",
	}
}

// NewGroupNotFoundError はグループ未検出エラーを生成する。
func NewGroupNotFoundError(groupID string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("Group not found: %s", groupID),
		Category: "matching",
		Action:   "Please check the group ID.",
	}
}

// NewIntakeNotFoundError はインテーク未検出エラーを生成する。
func NewIntakeNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeIntakeNotFound,
		Message:  "No intake record found.",
		Category: "chat",
		Action:   "Complete the intake conversation first.",
	}
}

// NewMembershipNotFoundError はメンバーシップ未検出エラーを生成する。
func NewMembershipNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeMembershipNotFound,
		Message:  "You have not been matched to a group yet.",
		Category: "matching",
		Action:   "Complete the intake conversation first.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
	}
}
