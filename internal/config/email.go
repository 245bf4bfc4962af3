package config

type EmailConfig struct {
	Provider     string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
}

func LoadEmailConfig() *EmailConfig {
	return &EmailConfig{
		Provider:     getEnv("EMAIL_PROVIDER", "dummy"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		From:         getEnv("EMAIL_FROM", "noreply@dernekpro.app"),
	}
}
