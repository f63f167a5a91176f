// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// MinBcryptCost は設定値に関わらず下回らない bcrypt のコストです。
	MinBcryptCost = 10
	// DefaultBcryptCost は BCRYPT_COST 未設定時のコストです。
	DefaultBcryptCost = 12
	// MaxBcryptCost は bcrypt が受け付ける最大コストです。
	MaxBcryptCost = 31
)

// UserStore の種別
const (
	UserStoreRedis  = "redis"
	UserStoreMemory = "memory"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`

	// セッション・CSRF 署名用の秘密鍵
	SessionSecret string `env:"SESSION_SECRET"`

	// CORS許可オリジン（カンマ区切り）
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	// パスワードハッシュ設定
	BcryptCost  int `env:"BCRYPT_COST" envDefault:"12"`
	HashWorkers int `env:"HASH_WORKERS" envDefault:"0"`

	// Redis / ユーザーストア
	RedisURL  string `env:"REDIS_URL" envDefault:"redis://127.0.0.1:6379/0"`
	UserStore string `env:"USER_STORE" envDefault:"redis"`

	// 監査ログ
	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditRetention int  `env:"AUDIT_RETENTION" envDefault:"1000"`
	AuditTTLHours  int  `env:"AUDIT_TTL_HOURS" envDefault:"168"`

	// セッション寿命
	SessionMaxAgeHours int `env:"SESSION_MAX_AGE_HOURS" envDefault:"12"`
	SessionIdleMinutes int `env:"SESSION_IDLE_MINUTES" envDefault:"30"`

	// ログイン試行制限
	LoginMaxAttempts   int `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindowMinutes int `env:"LOGIN_WINDOW_MINUTES" envDefault:"15"`
	LoginLockMinutes   int `env:"LOGIN_LOCK_MINUTES" envDefault:"10"`
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.UserStore {
	case UserStoreRedis, UserStoreMemory:
	default:
		return fmt.Errorf("USER_STORE must be %q or %q, got %q", UserStoreRedis, UserStoreMemory, c.UserStore)
	}

	// ローカル開発では秘密鍵は任意
	if c.IsRelease() {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
	}
	return nil
}

// IsRelease は gin の release モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// EffectiveBcryptCost は下限・上限を適用したハッシュコストを返します。
func (c *Config) EffectiveBcryptCost() int {
	return ClampBcryptCost(c.BcryptCost)
}

// ClampBcryptCost は cost を [MinBcryptCost, MaxBcryptCost] に収めます。
// 未設定時の既定値は envDefault で与えるため、明示的な 0 も下限に切り上げます。
func ClampBcryptCost(cost int) int {
	if cost < MinBcryptCost {
		return MinBcryptCost
	}
	if cost > MaxBcryptCost {
		return MaxBcryptCost
	}
	return cost
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// SessionMaxAge はセッションの絶対寿命です。
func (c *Config) SessionMaxAge() time.Duration {
	return hoursOr(c.SessionMaxAgeHours, 12)
}

// SessionIdleTimeout は無操作タイムアウトです。
func (c *Config) SessionIdleTimeout() time.Duration {
	return minutesOr(c.SessionIdleMinutes, 30)
}

// LoginWindow は失敗回数を数える期間です。
func (c *Config) LoginWindow() time.Duration {
	return minutesOr(c.LoginWindowMinutes, 15)
}

// LoginLockDuration はロック時間です。
func (c *Config) LoginLockDuration() time.Duration {
	return minutesOr(c.LoginLockMinutes, 10)
}

// AuditTTL は監査イベントの保持期間です。
func (c *Config) AuditTTL() time.Duration {
	return hoursOr(c.AuditTTLHours, 168)
}

func hoursOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Hour
}

func minutesOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Minute
}
