package config

import (
	"os"
	"strconv"
	"time"
)

type SMSConfig struct {
	Provider           string
	PerMinuteCap       int
	RateLimitWindow    time.Duration
	RetryLimit         int
	BatchSize          int
	MaxRecipients      int
	PersonalizeDefault bool
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFrom         string
}

func LoadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Provider:           getEnv("SMS_PROVIDER", "dummy"),
		PerMinuteCap:       getEnvAsInt("ORG_SMS_PER_MIN", 60),
		RateLimitWindow:    getEnvAsDuration("SMS_RATE_LIMIT_WINDOW", time.Minute),
		RetryLimit:         getEnvAsInt("SMS_RETRY_LIMIT", 2),
		BatchSize:          getEnvAsInt("SMS_BATCH_SIZE", 50),
		MaxRecipients:      getEnvAsInt("SMS_MAX_RECIPIENTS", 1000),
		PersonalizeDefault: getEnvAsBool("SMS_PERSONALIZE_DEFAULT", true),
		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:         getEnv("TWILIO_FROM", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
