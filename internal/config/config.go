package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderCredentials holds one platform's OAuth2 application credentials.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Config contains runtime configuration values.
type Config struct {
	Environment             string
	HTTPPort                string
	ServiceName             string
	VaultBaseURL            string
	VaultTimeout            time.Duration
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	RateLimitRPM            int
	TelemetryEndpoint       string
	TelemetryInsecure       bool
	EncryptProviderResponse bool
	Gmail                   ProviderCredentials
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	vaultBaseURL := strings.TrimSpace(os.Getenv("VAULT_BASE_URL"))
	if vaultBaseURL == "" {
		return Config{}, fmt.Errorf("VAULT_BASE_URL is required")
	}
	gmailClientID := strings.TrimSpace(os.Getenv("GMAIL_CLIENT_ID"))
	if gmailClientID == "" {
		return Config{}, fmt.Errorf("GMAIL_CLIENT_ID is required")
	}
	gmailClientSecret := strings.TrimSpace(os.Getenv("GMAIL_CLIENT_SECRET"))
	if gmailClientSecret == "" {
		return Config{}, fmt.Errorf("GMAIL_CLIENT_SECRET is required")
	}
	gmailRedirectURI := strings.TrimSpace(os.Getenv("GMAIL_REDIRECT_URI"))
	if gmailRedirectURI == "" {
		return Config{}, fmt.Errorf("GMAIL_REDIRECT_URI is required")
	}

	cfg := Config{
		Environment:             getEnv("APP_ENV", "development"),
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		ServiceName:             getEnv("SERVICE_NAME", "relay-publisher"),
		VaultBaseURL:            strings.TrimRight(vaultBaseURL, "/"),
		VaultTimeout:            getDuration("VAULT_TIMEOUT", 30*time.Second),
		RedisAddr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getInt("REDIS_DB", 0),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:       getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		EncryptProviderResponse: getBool("ENCRYPT_PROVIDER_RESPONSE", false),
		Gmail: ProviderCredentials{
			ClientID:     gmailClientID,
			ClientSecret: gmailClientSecret,
			RedirectURI:  gmailRedirectURI,
		},
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
