package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/model"
)

// Config holds all runtime configuration for the larder server.
type Config struct {
	Port            string
	DBPath          string
	LogLevel        string
	LogFormat       string
	SessionTTL      time.Duration
	RestockStatuses []model.ItemStatus
	SecureCookies   bool
	TrustedProxies  []netip.Prefix
	Backup          backup.Config
	Push            PushConfig
	Email           EmailConfig
}

// EmailConfig holds the Postmark settings for join-request emails.
type EmailConfig struct {
	PostmarkToken string
	From          string
	BaseURL       string
}

func (e EmailConfig) Enabled() bool {
	return e.PostmarkToken != ""
}

// PushConfig holds the VAPID key pair used to sign web push messages.
// Push is disabled unless both keys are set.
type PushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// Load reads an optional dotenv file at path and then the process environment.
// A missing file is not an error; malformed values are.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:      getEnvOrDefault("LARDER_PORT", "8080"),
		DBPath:    getEnvOrDefault("LARDER_DB_PATH", "larder.db"),
		LogLevel:  getEnvOrDefault("LARDER_LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LARDER_LOG_FORMAT", "text"),
	}

	ttl, err := time.ParseDuration(getEnvOrDefault("LARDER_SESSION_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("LARDER_SESSION_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("LARDER_SESSION_TTL must be positive, got %s", ttl)
	}
	cfg.SessionTTL = ttl

	statuses, err := parseStatuses(getEnvOrDefault("LARDER_RESTOCK_STATUSES", "running_low,buy_more"))
	if err != nil {
		return nil, fmt.Errorf("LARDER_RESTOCK_STATUSES: %w", err)
	}
	cfg.RestockStatuses = statuses

	secure, err := strconv.ParseBool(getEnvOrDefault("LARDER_SECURE_COOKIES", "false"))
	if err != nil {
		return nil, fmt.Errorf("LARDER_SECURE_COOKIES: %w", err)
	}
	cfg.SecureCookies = secure

	if cfg.TrustedProxies, err = parseProxies(os.Getenv("LARDER_TRUSTED_PROXIES")); err != nil {
		return nil, fmt.Errorf("LARDER_TRUSTED_PROXIES: %w", err)
	}

	if cfg.Backup, err = loadBackup(); err != nil {
		return nil, err
	}

	cfg.Push = PushConfig{
		PublicKey:  os.Getenv("LARDER_VAPID_PUBLIC_KEY"),
		PrivateKey: os.Getenv("LARDER_VAPID_PRIVATE_KEY"),
		Subject:    getEnvOrDefault("LARDER_VAPID_SUBJECT", "mailto:admin@localhost"),
	}
	if (cfg.Push.PublicKey == "") != (cfg.Push.PrivateKey == "") {
		return nil, fmt.Errorf("LARDER_VAPID_PUBLIC_KEY and LARDER_VAPID_PRIVATE_KEY must be set together")
	}

	cfg.Email = EmailConfig{
		PostmarkToken: os.Getenv("LARDER_POSTMARK_TOKEN"),
		From:          os.Getenv("LARDER_EMAIL_FROM"),
		BaseURL:       strings.TrimSuffix(getEnvOrDefault("LARDER_BASE_URL", "http://localhost:"+cfg.Port), "/"),
	}
	if cfg.Email.Enabled() && cfg.Email.From == "" {
		return nil, fmt.Errorf("LARDER_EMAIL_FROM is required when LARDER_POSTMARK_TOKEN is set")
	}

	return cfg, nil
}

func loadBackup() (backup.Config, error) {
	b := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("LARDER_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("LARDER_BACKUP_S3_BUCKET"),
			Region:    getEnvOrDefault("LARDER_BACKUP_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("LARDER_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LARDER_BACKUP_S3_SECRET_KEY"),
		},
		Passphrase: os.Getenv("LARDER_BACKUP_PASSPHRASE"),
		Prefix:     os.Getenv("LARDER_BACKUP_PREFIX"),
	}

	interval, err := time.ParseDuration(getEnvOrDefault("LARDER_BACKUP_INTERVAL", "24h"))
	if err != nil {
		return b, fmt.Errorf("LARDER_BACKUP_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return b, fmt.Errorf("LARDER_BACKUP_INTERVAL must be positive, got %s", interval)
	}
	b.Interval = interval

	retention, err := time.ParseDuration(getEnvOrDefault("LARDER_BACKUP_RETENTION", "720h"))
	if err != nil {
		return b, fmt.Errorf("LARDER_BACKUP_RETENTION: %w", err)
	}
	if retention < 0 {
		return b, fmt.Errorf("LARDER_BACKUP_RETENTION must not be negative, got %s", retention)
	}
	b.Retention = retention

	if b.S3.Bucket != "" && b.Passphrase == "" {
		return b, fmt.Errorf("LARDER_BACKUP_PASSPHRASE is required when LARDER_BACKUP_S3_BUCKET is set")
	}
	return b, nil
}

func parseStatuses(raw string) ([]model.ItemStatus, error) {
	var out []model.ItemStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := model.ItemStatus(part)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one status is required")
	}
	return out, nil
}

// parseProxies reads a comma separated list of CIDRs or bare addresses.
func parseProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
