package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザーの作成・認証は外部のアイデンティティ基盤が行い、
// 本サービスは参照のみを行う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// セッションの発行は外部のアイデンティティ基盤が行い、
// 本サービスは有効性の検証のみを行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
