// Package config はアプリケーション全体の設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 検証や導出を行うコードには環境を読ませず、この値を明示的に渡す。
type Config struct {
	// Database
	DatabaseURL string

	// 外部認証プロバイダー
	AuthAPIURL     string // プロバイダーAPIのベースURL
	AuthServiceKey string // 管理者権限のサービスキー
	AuthJWTSecret  string // アクセストークン（HS256 JWT）の検証シークレット

	// Telegram
	BotToken       string        // initData署名検証用の共有シークレット
	InitDataMaxAge time.Duration // initDataの最大許容経過時間

	// Credential
	CredentialSecret string // 合成パスワード導出用のサーバーシークレット

	// Rate Limit
	RateLimitLogin   int // ログインエンドポイントのレート（req/min/IP）
	RateLimitGeneral int // 認証済みAPI全般のレート（req/min/account）

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめて1つのエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthAPIURL = os.Getenv("AUTH_API_URL")
	if cfg.AuthAPIURL == "" {
		missing = append(missing, "AUTH_API_URL")
	}

	cfg.AuthServiceKey = os.Getenv("AUTH_SERVICE_KEY")
	if cfg.AuthServiceKey == "" {
		missing = append(missing, "AUTH_SERVICE_KEY")
	}

	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	cfg.CredentialSecret = os.Getenv("CREDENTIAL_SECRET")
	if cfg.CredentialSecret == "" {
		missing = append(missing, "CREDENTIAL_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.InitDataMaxAge = time.Duration(getEnvInt("INITDATA_MAX_AGE", 3600)) * time.Second
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
