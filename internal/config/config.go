package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds the process-wide configuration of the voice service.
type ServiceConfig struct {
	Port       string
	InstanceID string
	LogEnv     string

	// LiveKit (media platform + egress recording)
	LiveKitServerURL string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Recording is enabled only when both the bucket and base64 GCS credentials are present
	RecordingGCSBucket        string
	RecordingCredentialsB64   string
	RecordingPathPrefix       string
	RecordingStartTimeout     time.Duration
	RecordingMinEnrichSeconds float64

	// Twilio (transfer legs)
	TwilioAccountSID string
	TwilioAuthToken  string

	// Persistence: "postgres" (default) or "memory"
	PersistenceMode string

	// Redis (session monitor, enrichment fallback queue)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Pub/Sub enrichment queue
	PubSubProjectID  string
	PubSubTopicName  string
	EnrichSignedURLs bool
	EnrichURLExpiry  time.Duration

	// Conversational engine authentication
	EngineSharedSecret string

	// Staff lockout policy
	StaffLockoutThreshold int
	StaffLockoutDuration  time.Duration

	// Timeouts
	TenantLookupTimeout time.Duration
	FinalizeStepTimeout time.Duration

	// Global (main line) persona
	Defaults SessionSettings
}

// LoadFromEnv loads the service configuration from environment variables.
// .env files are loaded by main before this is called.
func LoadFromEnv() *ServiceConfig {
	cfg := &ServiceConfig{
		Port:       GetEnvOrDefault("PORT", "8082"),
		InstanceID: instanceID(),
		LogEnv:     GetEnvOrDefault("LOG_ENV", "development"),

		LiveKitServerURL: GetEnvOrDefault("LIVEKIT_SERVER_URL", ""),
		LiveKitAPIKey:    GetEnvOrDefault("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: GetEnvOrDefault("LIVEKIT_API_SECRET", ""),

		RecordingGCSBucket:        GetEnvOrDefault("LIVEKIT_GCS_BUCKET", ""),
		RecordingCredentialsB64:   GetEnvOrDefault("GOOGLE_STORAGE_LIVEKIT_CLOUD_ACCOUNT_JSON_BASE64", ""),
		RecordingPathPrefix:       GetEnvOrDefault("RECORDING_PATH_PREFIX", DefaultRecordingPathPrefix),
		RecordingStartTimeout:     time.Duration(GetEnvAsIntOrDefault("RECORDING_START_TIMEOUT_SECONDS", 10)) * time.Second,
		RecordingMinEnrichSeconds: float64(GetEnvAsIntOrDefault("ENRICHMENT_MIN_DURATION_SECONDS", DefaultMinEnrichmentSeconds)),

		TwilioAccountSID: GetEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  GetEnvOrDefault("TWILIO_AUTH_TOKEN", ""),

		PersistenceMode: strings.ToLower(GetEnvOrDefault("PERSISTENCE_MODE", PersistencePostgres)),

		RedisHost:     GetEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     GetEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: GetEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       GetEnvAsIntOrDefault("REDIS_DB", 0),

		PubSubProjectID:  GetEnvOrDefault("PUBSUB_PROJECT_ID", ""),
		PubSubTopicName:  GetEnvOrDefault("PUBSUB_ENRICHMENT_TOPIC", ""),
		EnrichSignedURLs: GetEnvAsBoolOrDefault("ENRICHMENT_SIGN_URLS", false),
		EnrichURLExpiry:  time.Duration(GetEnvAsIntOrDefault("ENRICHMENT_URL_EXPIRY_HOURS", 24)) * time.Hour,

		EngineSharedSecret: GetEnvOrDefault("ENGINE_SHARED_SECRET", ""),

		StaffLockoutThreshold: GetEnvAsIntOrDefault("STAFF_LOCKOUT_THRESHOLD", DefaultLockoutThreshold),
		StaffLockoutDuration:  time.Duration(GetEnvAsIntOrDefault("STAFF_LOCKOUT_MINUTES", DefaultLockoutMinutes)) * time.Minute,

		TenantLookupTimeout: time.Duration(GetEnvAsIntOrDefault("TENANT_LOOKUP_TIMEOUT_SECONDS", 3)) * time.Second,
		FinalizeStepTimeout: time.Duration(GetEnvAsIntOrDefault("FINALIZE_STEP_TIMEOUT_SECONDS", 10)) * time.Second,

		Defaults: DefaultSessionSettings(),
	}

	if v := os.Getenv("GLOBAL_GREETING"); v != "" {
		cfg.Defaults.Greeting = v
	}
	if v := os.Getenv("GLOBAL_VOICE"); v != "" {
		cfg.Defaults.Voice = v
	}

	return cfg
}

// RecordingEnabled reports whether egress recording can be started at all.
func (c *ServiceConfig) RecordingEnabled() bool {
	return c.LiveKitConfigured() && c.RecordingGCSBucket != "" && c.RecordingCredentialsB64 != ""
}

// LiveKitConfigured reports whether LiveKit API credentials are present.
func (c *ServiceConfig) LiveKitConfigured() bool {
	return c.LiveKitServerURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// TwilioConfigured reports whether Twilio REST credentials are present.
func (c *ServiceConfig) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

// RedisConfigured reports whether a Redis host is set.
func (c *ServiceConfig) RedisConfigured() bool {
	return c.RedisHost != ""
}

// PubSubConfigured reports whether the enrichment topic can be used.
func (c *ServiceConfig) PubSubConfigured() bool {
	return c.PubSubProjectID != "" && c.PubSubTopicName != ""
}

// GetEnvOrDefault gets environment variable or returns default
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsIntOrDefault gets environment variable as int or returns default
func GetEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsBoolOrDefault gets environment variable as bool or returns default
func GetEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// instanceID uses the hostname (pod name in Kubernetes) and falls back to a timestamp
func instanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("voice-service-%d", time.Now().UnixNano())
}
