// internal/config/config.go
//
// 讀取服務設定：先嘗試載入 .env（不存在時略過），再以環境變數為準。
// 格式錯誤的值在啟動時即回傳錯誤，不會以預設值默默帶過。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 為服務啟動所需的全部設定。
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	RedisAddr       string
	IdempotencyTTL  time.Duration
	ShutdownTimeout time.Duration

	// 轉帳政策，見 bank.Policy
	AllowExactDrain    bool
	RejectSelfTransfer bool
}

// Load 讀取 files 指定的 .env 檔（預設為工作目錄下的 .env），再讀取環境變數。
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", ""),
		RedisAddr: getEnv("REDIS_ADDR", ""),
	}

	var err error
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AllowExactDrain, err = getBool("TRANSFER_ALLOW_EXACT_DRAIN", false); err != nil {
		return nil, err
	}
	if cfg.RejectSelfTransfer, err = getBool("TRANSFER_REJECT_SELF", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr 回傳 http.Server 使用的監聽位址。
func (c *Config) Addr() string {
	return ":" + c.Port
}

// getEnv 取環境變數，不存在時回傳 fallback。
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
