package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	OutputDir   string

	HeaderScanRows    int
	KeptDefault       bool
	DedupWithCategory bool
	DefaultOwner      string
	DefaultCategory   string
	ImportProfile     string

	LookupBaseURL    string
	LookupUserAgent  string
	LookupRPS        int
	LookupTimeoutMs  int
	LookupMaxRetries int
	LookupProxy      string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider    string
	MailListenerLabel       string
	MailListenerIntervalSec int
	MailListenerFetchMax    int
	MailListenerProfile     string
	MailListenerMaxAttempts int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "books.sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		HeaderScanRows:    getEnvInt("HEADER_SCAN_ROWS", 60),
		KeptDefault:       getEnvBool("KEPT_DEFAULT", true),
		DedupWithCategory: getEnvBool("DEDUP_WITH_CATEGORY", false),
		DefaultOwner:      getEnv("DEFAULT_OWNER", ""),
		DefaultCategory:   getEnv("DEFAULT_CATEGORY", "Livre"),
		ImportProfile:     getEnv("IMPORT_PROFILE", "keyword"),

		LookupBaseURL:    getEnv("LOOKUP_BASE_URL", "https://openlibrary.org"),
		LookupUserAgent:  getEnv("LOOKUP_USER_AGENT", "biblio/1.0 (household catalogue)"),
		LookupRPS:        getEnvInt("LOOKUP_RPS", 2),
		LookupTimeoutMs:  getEnvInt("LOOKUP_TIMEOUT_MS", 15000),
		LookupMaxRetries: getEnvInt("LOOKUP_MAX_RETRIES", 2),
		LookupProxy:      getEnv("LOOKUP_PROXY", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:    getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:       getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec: getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 300),
		MailListenerFetchMax:    getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProfile:     getEnv("MAIL_LISTENER_PROFILE", "clean"),
		MailListenerMaxAttempts: getEnvInt("MAIL_LISTENER_MAX_ATTEMPTS", 3),
	}

	if cfg.HeaderScanRows <= 0 {
		cfg.HeaderScanRows = 60
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
