// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService はユーザーが入力したチャットメッセージを
// サニタイズし、保存・再表示時のXSSからユーザーを保護する。
// チャットメッセージは平文として扱うため、bluemondayのStrictPolicyで
// 全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はチャットメッセージのサニタイズ機能の
// インターフェースを定義する。メッセージの保存前に使用される。
type MessageSanitizerService interface {
	// Sanitize はメッセージから全てのHTMLタグを除去し、
	// 前後の空白を取り除いた平文を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(message string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// チャットメッセージにHTMLは不要なため、全タグを除去するStrictPolicyを使う。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はメッセージから全てのHTMLタグを除去した平文を返す。
// StrictPolicyはエンティティをエスケープして返すため、
// 平文として保存できるようアンエスケープしてから空白を整える。
func (s *messageSanitizer) Sanitize(message string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(message)))
}

// compile-time interface check
var _ MessageSanitizerService = (*messageSanitizer)(nil)
