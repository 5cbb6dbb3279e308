package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the mpesa-adapter.
type Config struct {
	ServiceName      string
	Env              string // "dev", "uat", "prod"
	LogLevel         string
	Port             int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// Daraja credentials. When CredentialsSecret is set the key/secret/base URL
	// are resolved from AWS Secrets Manager instead and these act as fallback.
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string

	// C2B registration
	ShortCode       string
	ConfirmationURL string
	ValidationURL   string
	ResponseType    string

	TokenTTL          time.Duration
	TokenSingleFlight bool
	UpstreamTimeout   time.Duration
	RateRPS           int
	RateBurst         int

	NATSURL        string // empty disables event publishing
	EventStream    string
	PublishTimeout time.Duration

	AWSRegion         string
	CredentialsSecret string
	CacheTTL          time.Duration
	CleanupFreq       time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "mpesa-adapter"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		Port:             GetEnvInt("PORT", 5000),
		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		ConsumerKey:    GetEnv("CONSUMER_KEY", ""),
		ConsumerSecret: GetEnv("CONSUMER_SECRET", ""),
		BaseURL:        GetEnv("MPESA_BASE_URL", ""),

		ShortCode:       GetEnv("SHORT_CODE", ""),
		ConfirmationURL: GetEnv("CONFIRMATION_URL", ""),
		ValidationURL:   GetEnv("VALIDATION_URL", ""),
		ResponseType:    GetEnv("RESPONSE_TYPE", "Completed"),

		TokenTTL:          GetEnvDuration("DARAJA_TOKEN_TTL", 50*time.Minute),
		TokenSingleFlight: GetEnvBool("DARAJA_TOKEN_SINGLE_FLIGHT", false),
		UpstreamTimeout:   GetEnvDuration("DARAJA_HTTP_TIMEOUT", 30*time.Second),
		RateRPS:           GetEnvInt("DARAJA_RATE_RPS", 5),
		RateBurst:         GetEnvInt("DARAJA_RATE_BURST", 10),

		NATSURL:        GetEnv("NATS_URL", ""),
		EventStream:    GetEnv("EVENT_STREAM", "MPESA_EVENTS"),
		PublishTimeout: GetEnvDuration("EVENT_PUBLISH_TIMEOUT", 2*time.Second),

		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		CredentialsSecret: GetEnv("MPESA_CREDENTIALS_SECRET", ""),
		CacheTTL:          GetEnvDuration("CACHE_TTL", 1*time.Hour),
		CleanupFreq:       GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
	}
}

// Missing returns the names of required variables that are unset.
// Consumer credentials are only required when no secret is configured.
func (c *Config) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"SHORT_CODE", c.ShortCode},
		{"CONFIRMATION_URL", c.ConfirmationURL},
		{"VALIDATION_URL", c.ValidationURL},
	}
	if c.CredentialsSecret == "" {
		required = append([]struct {
			name  string
			value string
		}{
			{"CONSUMER_KEY", c.ConsumerKey},
			{"CONSUMER_SECRET", c.ConsumerSecret},
		}, required...)
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}
