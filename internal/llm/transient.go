package llm

import (
	"context"
	"errors"
	"net"

	"github.com/openai/openai-go"
)

// ErrNotConfigured はAPIキー未設定のため呼び出しを行わなかったことを表す。
var ErrNotConfigured = errors.New("llm is not configured")

// ErrMalformedOutput は推論サービスが解析不能な出力を返したことを表す。
// このエラーはリトライ対象にならない。
var ErrMalformedOutput = errors.New("llm returned malformed output")

// IsTransient はエラーが一時的障害（リトライする価値があるもの）かを判定する。
// レート制限・サーバーエラー・タイムアウト・接続障害を一時的障害として扱う。
// 未設定・不正出力はリトライしても結果が変わらないため対象外。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrMalformedOutput) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	// タイムアウトした呼び出しは放棄し、失敗として扱う（キャンセル伝播は行わない）
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
