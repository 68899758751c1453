package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// ClinicID scopes every record this instance reads and writes.
	ClinicID string

	PatientsTable    string
	VisitsTable      string
	VisitAuditsTable string
	MembershipsTable string

	SessionJWTSecret string
	AuthBypass       bool
	AuthBypassRole   string
	AuthBypassUserID string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	MembershipCacheTTL time.Duration

	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      strings.ToLower(getEnv("ENV", "development")),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClinicID: getEnv("CLINIC_ID", ""),

		PatientsTable:    getEnv("PATIENTS_TABLE", "patients"),
		VisitsTable:      getEnv("VISITS_TABLE", "visits"),
		VisitAuditsTable: getEnv("VISIT_AUDITS_TABLE", "visit_audits"),
		MembershipsTable: getEnv("MEMBERSHIPS_TABLE", "memberships"),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		AuthBypass:       getEnvAsBool("AUTH_BYPASS", false),
		AuthBypassRole:   getEnv("AUTH_BYPASS_ROLE", "reception"),
		AuthBypassUserID: getEnv("AUTH_BYPASS_USER_ID", "dev-user-1"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		MembershipCacheTTL: getEnvAsDuration("MEMBERSHIP_CACHE_TTL", 5*time.Minute),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitPerSec:    getEnvAsFloat("RATE_LIMIT_PER_SEC", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction reports whether this instance runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if c.ClinicID == "" {
		return fmt.Errorf("config: CLINIC_ID is required")
	}
	if c.AuthBypass && c.IsProduction() {
		return fmt.Errorf("config: AUTH_BYPASS cannot be enabled in production")
	}
	if !c.AuthBypass && c.SessionJWTSecret == "" {
		return fmt.Errorf("config: SESSION_JWT_SECRET is required unless AUTH_BYPASS is set")
	}
	if c.MembershipCacheTTL < 0 {
		return fmt.Errorf("config: MEMBERSHIP_CACHE_TTL cannot be negative")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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
