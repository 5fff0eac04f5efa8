package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider はチャット補完に使用するバックエンドを表す。
type LLMProvider string

const (
	// LLMProviderGroq はGroqのOpenAI互換エンドポイントを使用する。
	LLMProviderGroq LLMProvider = "groq"
	// LLMProviderOpenAI はOpenAIを使用する。
	LLMProviderOpenAI LLMProvider = "openai"
	// LLMProviderNone はLLM未設定を表す。モック応答と全欠損抽出にフォールバックする。
	LLMProviderNone LLMProvider = "none"
)

// GroqBaseURL はGroqのOpenAI互換APIエンドポイント。
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 各サービスにはコンストラクタで明示的に渡す（隠れたグローバル参照はしない）。
type Config struct {
	// Database
	DatabaseURL string

	// LLM
	// GroqAPIKeyとOpenAIAPIKeyが両方設定されている場合はGroqを優先する。
	// 両方とも空の場合はLLM未設定として扱い、外部呼び出しを一切行わない。
	GroqAPIKey   string
	OpenAIAPIKey string
	GroqModel    string
	OpenAIModel  string
	LLMTimeout   time.Duration

	// Crisis
	CrisisLineText string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSend    int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// LLMProvider は設定済みのLLMバックエンドを返す。
func (c *Config) LLMProvider() LLMProvider {
	if strings.TrimSpace(c.GroqAPIKey) != "" {
		return LLMProviderGroq
	}
	if strings.TrimSpace(c.OpenAIAPIKey) != "" {
		return LLMProviderOpenAI
	}
	return LLMProviderNone
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// LLMのAPIキーは必須ではない: 未設定の場合はモック応答で動作する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GroqModel = getEnvString("GROQ_MODEL", "llama-3.1-8b-instant")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 30*time.Second)
	cfg.CrisisLineText = getEnvString("CRISIS_LINE_TEXT",
		"Please contact a mental health professional or crisis helpline.")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSend = getEnvInt("RATE_LIMIT_SEND", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
