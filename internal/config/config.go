// Package config содержит логику чтения конфигурации сервиса archivemart.
package config

import (
	"flag"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/archivemart/internal/loyalty"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса archivemart.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	PaymentGatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`

	PaymentGatewayKey string        `env:"PAYMENT_GATEWAY_KEY"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	AdminToken        string        `env:"ADMIN_TOKEN"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisChannel      string        `env:"REDIS_CHANNEL" envDefault:"archivemart.events"`
	DevMode           bool          `env:"DEV_MODE" envDefault:"false"`
	PaymentTimeout    time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"60m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	Currency          string        `env:"CURRENCY" envDefault:"USD"`

	Loyalty LoyaltyConfig
}

// LoyaltyConfig — параметры программы лояльности в том виде, в каком они приходят из окружения.
type LoyaltyConfig struct {
	BonusCapRatio     decimal.Decimal `env:"BONUS_CAP_RATIO" envDefault:"0.7"`
	PointsPerUnit     int64           `env:"POINTS_PER_UNIT" envDefault:"100"`
	ReferralBonus     int64           `env:"REFERRAL_BONUS" envDefault:"20"`
	ReferralPercent   decimal.Decimal `env:"REFERRAL_PURCHASE_PERCENT" envDefault:"0.05"`
	WelcomeBonus      int64           `env:"WELCOME_BONUS" envDefault:"0"`
	StreakRestoreCost int64           `env:"STREAK_RESTORE_COST" envDefault:"30"`
	JackpotBonus      int64           `env:"JACKPOT_BONUS" envDefault:"100"`
	JackpotChance     float64         `env:"JACKPOT_CHANCE" envDefault:"0.005"`
	JackpotPolicy     string          `env:"JACKPOT_POLICY" envDefault:"chance"`
	DailyResetZone    string          `env:"DAILY_RESET_TIMEZONE" envDefault:"Europe/Kiev"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.PaymentGatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentGatewayAddress, "g", "", "payment gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.PaymentGatewayAddress = envGatewayAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PaymentTimeout <= 0 || cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("payment timeout and sweep interval must be positive")
	}

	return cfg, nil
}

// LoyaltySettings собирает и проверяет неизменяемые параметры программы лояльности.
func (c *Config) LoyaltySettings() (loyalty.Settings, error) {
	loc, err := time.LoadLocation(c.Loyalty.DailyResetZone)
	if err != nil {
		return loyalty.Settings{}, fmt.Errorf("daily reset timezone: %w", err)
	}

	s := loyalty.DefaultSettings()
	s.BonusCapRatio = c.Loyalty.BonusCapRatio
	s.PointsPerUnit = c.Loyalty.PointsPerUnit
	s.ReferralBonus = c.Loyalty.ReferralBonus
	s.ReferralPercent = c.Loyalty.ReferralPercent
	s.WelcomeBonus = c.Loyalty.WelcomeBonus
	s.StreakRestoreCost = c.Loyalty.StreakRestoreCost
	s.JackpotBonus = c.Loyalty.JackpotBonus
	s.JackpotChance = c.Loyalty.JackpotChance
	s.JackpotPolicy = loyalty.JackpotPolicy(c.Loyalty.JackpotPolicy)
	s.Location = loc

	if err := s.Validate(); err != nil {
		return loyalty.Settings{}, fmt.Errorf("loyalty settings: %w", err)
	}
	return s, nil
}
