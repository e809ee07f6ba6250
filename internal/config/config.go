// Package config reads the process configuration from environment
// variables into one explicit struct; nothing else in the tree touches
// the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string

	CookieHashKey  []byte
	CookieBlockKey []byte

	// checker
	CronSchedule  string
	CheckDelay    time.Duration
	LookAheadDays int
	DisableChecks bool
	// ProviderOrder is the failover priority, first entry tried first.
	ProviderOrder []string

	// sncf connector
	SncfBaseURL   string
	SncfSearchURL string
	SncfAPIKey    string

	// trainline connector
	TrainlineBaseURL    string
	TrainlineSearchURL  string
	TrainlineCardID     string
	TrainlineCardTypeID string

	// notification mail
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		CronSchedule:  getenv("CRON_SCHEDULE", "*/30 * * * *"),
		DisableChecks: os.Getenv("DISABLE_CHECKS") == "1",
		ProviderOrder: splitCSV(getenv("PROVIDER_ORDER", "trainline,sncf")),

		SncfBaseURL:   getenv("SNCF_BASE_URL", "https://www.sncf-connect.com"),
		SncfSearchURL: getenv("SNCF_SEARCH_URL", "https://www.sncf-connect.com/bff/api/v1/itineraries"),

		TrainlineBaseURL:    getenv("TRAINLINE_BASE_URL", "https://www.thetrainline.com"),
		TrainlineSearchURL:  getenv("TRAINLINE_SEARCH_URL", "https://www.thetrainline.com/api/journey-search"),
		TrainlineCardID:     getenv("TRAINLINE_CARD_ID", "e0265100-a8e2-4bc9-a539-eaed994d0000"),
		TrainlineCardTypeID: strings.TrimSpace(os.Getenv("TRAINLINE_CARD_TYPE_ID")),

		SMTPHost: strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPUser: strings.TrimSpace(os.Getenv("SMTP_USER")),
		SMTPFrom: strings.TrimSpace(os.Getenv("SMTP_FROM")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	delay, err := time.ParseDuration(getenv("CHECK_DELAY", "2s"))
	if err != nil || delay < 0 {
		return Config{}, fmt.Errorf("invalid CHECK_DELAY")
	}
	cfg.CheckDelay = delay

	days, err := strconv.Atoi(getenv("LOOKAHEAD_DAYS", "30"))
	if err != nil || days < 1 {
		return Config{}, fmt.Errorf("invalid LOOKAHEAD_DAYS")
	}
	cfg.LookAheadDays = days

	if len(cfg.ProviderOrder) == 0 {
		return Config{}, fmt.Errorf("PROVIDER_ORDER must name at least one provider")
	}
	for _, p := range cfg.ProviderOrder {
		switch p {
		case "sncf", "trainline":
		default:
			return Config{}, fmt.Errorf("unknown provider %q in PROVIDER_ORDER", p)
		}
	}

	cfg.CookieHashKey, err = mustB64("COOKIE_HASH_KEY")
	if err != nil {
		return Config{}, err
	}
	cfg.CookieBlockKey, err = mustB64("COOKIE_BLOCK_KEY")
	if err != nil {
		return Config{}, err
	}

	// Provider secrets are only needed when the provider is enabled.
	if contains(cfg.ProviderOrder, "sncf") {
		cfg.SncfAPIKey, err = secret("SNCF_API_KEY")
		if err != nil {
			return Config{}, err
		}
	}
	if contains(cfg.ProviderOrder, "trainline") && cfg.TrainlineCardTypeID == "" {
		return Config{}, fmt.Errorf("TRAINLINE_CARD_TYPE_ID is required when trainline is enabled")
	}

	if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
		return Config{}, fmt.Errorf("SMTP_HOST and SMTP_FROM are required")
	}
	port, err := strconv.Atoi(getenv("SMTP_PORT", "587"))
	if err != nil || port < 1 {
		return Config{}, fmt.Errorf("invalid SMTP_PORT")
	}
	cfg.SMTPPort = port
	cfg.SMTPPassword, err = secret("SMTP_PASSWORD")
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// secret reads KEY, or the file named by KEY_FILE, so deployments can
// mount credentials instead of exporting them.
func secret(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v != "" {
		return v, nil
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%s_FILE: %w", key, err)
		}
		if v := strings.TrimSpace(string(b)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s is required (or %s_FILE)", key, key)
}

func mustB64(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", key)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
