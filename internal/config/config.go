// Package config は環境変数から実行時設定を読み込む。
// 認証情報は環境変数（または .env）からのみ取得し、コードにデフォルト値を持たない。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// メール送信トランスポート
const (
	TransportACS  = "acs"
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// MinRetentionDays は通知レコード保持日数の下限。
// 通知間隔（最大30日）より短いと再通知判定に必要な履歴が消える。
const MinRetentionDays = 30

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Email
	EmailTransport      string
	SenderAddress       string
	EmailSendTimeout    time.Duration
	EmailRatePerSecond  float64
	ACSConnectionString string
	ACSPollInterval     time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// SES
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SESEndpoint        string

	// Digest
	DigestTitle string
	PortalName  string

	// Schedule
	RunInterval               time.Duration
	RunOnStartup              bool
	NotificationRetentionDays int

	// Run lock
	RunLockRedisURL string
	RunLockTTL      time.Duration

	// Server
	OpsPort  string
	LogLevel string
}

// LoadDotEnv は指定された .env ファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	dbURL, dbMissing := databaseURL()
	cfg.DatabaseURL = dbURL
	missing = append(missing, dbMissing...)

	cfg.SenderAddress = os.Getenv("EMAIL_SENDER_ADDRESS")
	if cfg.SenderAddress == "" {
		missing = append(missing, "EMAIL_SENDER_ADDRESS")
	}

	cfg.EmailTransport = strings.ToLower(getEnvString("EMAIL_TRANSPORT", TransportACS))
	switch cfg.EmailTransport {
	case TransportACS:
		cfg.ACSConnectionString = os.Getenv("ACS_CONNECTION_STRING")
		if cfg.ACSConnectionString == "" {
			missing = append(missing, "ACS_CONNECTION_STRING")
		}
	case TransportSMTP:
		cfg.SMTPHost = os.Getenv("SMTP_HOST")
		if cfg.SMTPHost == "" {
			missing = append(missing, "SMTP_HOST")
		}
	case TransportSES:
		cfg.AWSRegion = os.Getenv("AWS_REGION")
		if cfg.AWSRegion == "" {
			missing = append(missing, "AWS_REGION")
		}
	default:
		return nil, fmt.Errorf("unsupported EMAIL_TRANSPORT %q (want acs, smtp or ses)", cfg.EmailTransport)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.EmailSendTimeout = getEnvDuration("EMAIL_SEND_TIMEOUT", 2*time.Minute)
	cfg.EmailRatePerSecond = getEnvFloat("EMAIL_RATE_PER_SECOND", 5)
	cfg.ACSPollInterval = getEnvDuration("ACS_POLL_INTERVAL", 2*time.Second)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.AWSAccessKeyID = getEnvString("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvString("AWS_SECRET_ACCESS_KEY", "")
	cfg.SESEndpoint = getEnvString("SES_ENDPOINT", "")
	cfg.DigestTitle = getEnvString("DIGEST_TITLE", "")
	cfg.PortalName = getEnvString("PORTAL_NAME", "")
	cfg.RunInterval = getEnvDuration("RUN_INTERVAL", 24*time.Hour)
	cfg.RunOnStartup = getEnvBool("RUN_ON_STARTUP", true)
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 180)
	cfg.RunLockRedisURL = getEnvString("RUN_LOCK_REDIS_URL", "")
	cfg.RunLockTTL = getEnvDuration("RUN_LOCK_TTL", time.Hour)
	cfg.OpsPort = getEnvString("OPS_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は値の範囲を検証する。
func (c *Config) validate() error {
	var invalid []string

	if c.NotificationRetentionDays < MinRetentionDays {
		invalid = append(invalid, fmt.Sprintf("NOTIFICATION_RETENTION_DAYS must be >= %d", MinRetentionDays))
	}
	if c.RunInterval < time.Minute {
		invalid = append(invalid, "RUN_INTERVAL must be >= 1m")
	}
	if c.EmailSendTimeout <= 0 {
		invalid = append(invalid, "EMAIL_SEND_TIMEOUT must be positive")
	}
	if c.EmailRatePerSecond < 0 {
		invalid = append(invalid, "EMAIL_RATE_PER_SECOND must not be negative")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		invalid = append(invalid, "SMTP_PORT is out of range")
	}
	if c.SMTPUsername != "" && c.SMTPPassword == "" {
		invalid = append(invalid, "SMTP_PASSWORD is required when SMTP_USERNAME is set")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		invalid = append(invalid, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}
	return nil
}

// databaseURL はDATABASE_URL、またはDB_*の個別設定から接続URLを組み立てる。
func databaseURL() (string, []string) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}

	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")

	var missing []string
	if host == "" {
		missing = append(missing, "DATABASE_URL or DB_HOST")
	}
	if user == "" {
		missing = append(missing, "DB_USER")
	}
	if password == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if len(missing) > 0 {
		return "", missing
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, getEnvString("DB_PORT", "5432")),
		Path:     "/" + getEnvString("DB_NAME", "postgres"),
		RawQuery: url.Values{"sslmode": {getEnvString("DB_SSLMODE", "require")}}.Encode(),
	}
	return u.String(), nil
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
