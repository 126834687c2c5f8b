package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string
	DBConn      string
	LogLevel    string
	JWTSecret   string
	CBRURL      string
	HMACSecret  string
	AutoMigrate bool

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	DefaultInterestRate   float64
	DefaultMicrocreditDur time.Duration
	DonationTimeout       time.Duration

	ExpirationSweepSpec string
	SettlementSweepSpec string
	DonationSweepSpec   string
	SchedulerTimezone   string
}

// NewConfig loads configuration from an optional .env file and environment variables
func NewConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBConn:       getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", "secret"),
		CBRURL:       getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		HMACSecret:   getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "noreply@microfin.local"),

		ExpirationSweepSpec: getEnv("EXPIRATION_SWEEP_SPEC", "0 1 * * *"),
		SettlementSweepSpec: getEnv("SETTLEMENT_SWEEP_SPEC", "0 18 * * *"),
		DonationSweepSpec:   getEnv("DONATION_SWEEP_SPEC", "@every 1m"),
		SchedulerTimezone:   getEnv("SCHEDULER_TIMEZONE", "UTC"),
	}

	var err error
	if cfg.AutoMigrate, err = strconv.ParseBool(getEnv("AUTO_MIGRATE", "false")); err != nil {
		return nil, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
	}
	if cfg.DefaultInterestRate, err = strconv.ParseFloat(getEnv("DEFAULT_INTEREST_RATE", "21"), 64); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_INTEREST_RATE: %w", err)
	}
	days, err := strconv.Atoi(getEnv("DEFAULT_MICROCREDIT_DAYS", "30"))
	if err != nil || days <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_MICROCREDIT_DAYS: %q", getEnv("DEFAULT_MICROCREDIT_DAYS", ""))
	}
	cfg.DefaultMicrocreditDur = time.Duration(days) * 24 * time.Hour
	if cfg.DonationTimeout, err = time.ParseDuration(getEnv("DONATION_TIMEOUT", "1m")); err != nil {
		return nil, fmt.Errorf("invalid DONATION_TIMEOUT: %w", err)
	}
	if cfg.DonationTimeout <= 0 {
		return nil, fmt.Errorf("DONATION_TIMEOUT must be positive")
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.SchedulerTimezone); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Location returns the time zone sweeps use to decide the current date.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
