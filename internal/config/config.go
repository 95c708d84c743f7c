package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Env      string
	LogLevel string

	// FunPay marketplace access.
	FunPayAuthToken string
	FunPayBaseURL   string
	PollDelay       time.Duration

	// BuySteamPoints provider access.
	BSPAPIKey      string
	BSPBaseURL     string
	RequestTimeout time.Duration

	// Order intake rules.
	CategoryID     int
	MinPoints      int
	LotMultipliers map[int64]int
	TitleInference bool

	// Failure compensation.
	AutoRefund           bool
	AutoDeactivate       bool
	BSPMinBalance        float64
	DeactivateCategoryID int

	// Fulfillment dispatch.
	WorkerCount int

	// Conversation state backend. When RedisAddr is empty the store is
	// in-memory and StateTTL is ignored.
	RedisAddr     string
	RedisPassword string
	StateTTL      time.Duration

	// Optional order journal.
	DatabaseURL string

	// Admin HTTP surface.
	AdminPort      string
	AdminJWTSecret string

	// Operator notifications.
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	OperatorEmail     string
}

// Load reads configuration from environment variables.
func Load() *Config {
	categoryID := getEnvAsInt("CATEGORY_ID", 714)
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		FunPayAuthToken: getEnv("FUNPAY_AUTH_TOKEN", ""),
		FunPayBaseURL:   getEnv("FUNPAY_BASE_URL", ""),
		PollDelay:       getEnvAsDuration("POLL_DELAY", 3*time.Second),

		BSPAPIKey:      getEnv("BSP_API_KEY", ""),
		BSPBaseURL:     getEnv("BSP_BASE_URL", ""),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT", 300)) * time.Second,

		CategoryID:     categoryID,
		MinPoints:      getEnvAsInt("MIN_POINTS", 100),
		LotMultipliers: parseLotMultipliers(getEnv("LOT_MULTIPLIERS", "")),
		TitleInference: getEnvAsBool("TITLE_INFERENCE", true),

		AutoRefund:           getEnvAsBool("AUTO_REFUND", true),
		AutoDeactivate:       getEnvAsBool("AUTO_DEACTIVATE", true),
		BSPMinBalance:        getEnvAsFloat("BSP_MIN_BALANCE", 5.0),
		DeactivateCategoryID: getEnvAsInt("DEACTIVATE_CATEGORY_ID", categoryID),

		WorkerCount: getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StateTTL:      getEnvAsDuration("STATE_TTL", 0),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AdminPort:      getEnv("ADMIN_PORT", "8080"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Steam Points Bot"),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),
	}
}

// Validate checks the credentials without which the process must not start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FunPayAuthToken) == "" {
		return errors.New("FUNPAY_AUTH_TOKEN is required")
	}
	if strings.TrimSpace(c.BSPAPIKey) == "" {
		return errors.New("BSP_API_KEY is required")
	}
	return nil
}

// parseLotMultipliers decodes a JSON object of lot id -> points-per-unit.
// A malformed value yields an empty map; lot multipliers are an optional
// tuning knob, not a startup requirement.
func parseLotMultipliers(raw string) map[int64]int {
	out := map[int64]int{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}
	decoded := map[string]int{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return out
	}
	for k, v := range decoded {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil || v <= 0 {
			continue
		}
		out[id] = v
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch valueStr {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
