// Package config содержит логику чтения конфигурации сервиса учёта абонементов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultReconcileSchedule = "0 * * * *"
	defaultNotifySchedule    = "0 8 * * *"
	defaultRevenueTarget     = 500000.0
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress           string  `env:"RUN_ADDRESS"`
	DatabaseURI          string  `env:"DATABASE_URI"`
	AlertWebhookURL      string  `env:"ALERT_WEBHOOK_URL"`
	ReconcileSchedule    string  `env:"RECONCILE_SCHEDULE"`
	NotifySchedule       string  `env:"NOTIFY_SCHEDULE"`
	DefaultRevenueTarget float64 `env:"DEFAULT_REVENUE_TARGET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}

	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AlertWebhookURL, "w", "", "alert webhook URL")
	flag.StringVar(&cfg.ReconcileSchedule, "s", defaultReconcileSchedule, "cron schedule for status reconciliation")
	flag.StringVar(&cfg.NotifySchedule, "n", defaultNotifySchedule, "cron schedule for notification digest")
	flag.Float64Var(&cfg.DefaultRevenueTarget, "t", defaultRevenueTarget, "default monthly revenue target")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.AlertWebhookURL != "" {
		cfg.AlertWebhookURL = envCfg.AlertWebhookURL
	}
	if envCfg.ReconcileSchedule != "" {
		cfg.ReconcileSchedule = envCfg.ReconcileSchedule
	}
	if envCfg.NotifySchedule != "" {
		cfg.NotifySchedule = envCfg.NotifySchedule
	}
	if envCfg.DefaultRevenueTarget != 0 {
		cfg.DefaultRevenueTarget = envCfg.DefaultRevenueTarget
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.DefaultRevenueTarget <= 0 {
		return nil, fmt.Errorf("default revenue target must be positive, got %v", cfg.DefaultRevenueTarget)
	}

	return cfg, nil
}
