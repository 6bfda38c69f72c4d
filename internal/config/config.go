package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Addr        string `yaml:"addr" env:"RUN_ADDRESS" env-default:"localhost:8080"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDRESS" env-default:"localhost:9090"`
	DatabaseURL string `yaml:"database_uri" env:"DATABASE_URI"`
	LogLevel    string `yaml:"log_level" env:"LEDGER_LOG_LEVEL" env-default:"info"`
	SeedFile    string `yaml:"seed_file" env:"LEDGER_SEED_FILE"`

	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me"`
	AuditSecret string `yaml:"audit_secret" env:"AUDIT_SIGNING_KEY" env-default:"change-me-too"`

	Ledger       Ledger       `yaml:"ledger"`
	Fraud        Fraud        `yaml:"fraud"`
	Notification Notification `yaml:"notification"`
}

type Ledger struct {
	LockTimeout  time.Duration `yaml:"lock_timeout" env:"LEDGER_LOCK_TIMEOUT" env-default:"5s"`
	LockStripes  int           `yaml:"lock_stripes" env:"LEDGER_LOCK_STRIPES" env-default:"256"`
	HistoryLimit int           `yaml:"history_limit" env:"LEDGER_HISTORY_LIMIT" env-default:"50"`
}

type Fraud struct {
	LargeAmount      float64       `yaml:"large_amount" env:"FRAUD_LARGE_AMOUNT" env-default:"10000"`
	LargeCount       int           `yaml:"large_count" env:"FRAUD_LARGE_COUNT" env-default:"3"`
	Window           time.Duration `yaml:"window" env:"FRAUD_WINDOW" env-default:"1h"`
	WithdrawalRatio  float64       `yaml:"withdrawal_ratio" env:"FRAUD_WITHDRAWAL_RATIO" env-default:"0.8"`
	WithdrawalAmount float64       `yaml:"withdrawal_amount" env:"FRAUD_WITHDRAWAL_AMOUNT" env-default:"50000"`

	Trees          int     `yaml:"trees" env:"FRAUD_TREES" env-default:"100"`
	Contamination  float64 `yaml:"contamination" env:"FRAUD_CONTAMINATION" env-default:"0.05"`
	Seed           uint64  `yaml:"seed" env:"FRAUD_SEED" env-default:"42"`
	TrainPerAcct   int     `yaml:"train_per_account" env:"FRAUD_TRAIN_PER_ACCOUNT" env-default:"100"`
	MinSamples     int     `yaml:"min_samples" env:"FRAUD_MIN_SAMPLES" env-default:"10"`
	SyntheticCount int     `yaml:"synthetic_count" env:"FRAUD_SYNTHETIC_COUNT" env-default:"100"`
}

type Notification struct {
	Workers      int    `yaml:"workers" env:"NOTIFY_WORKERS" env-default:"2"`
	QueueSize    int    `yaml:"queue_size" env:"NOTIFY_QUEUE_SIZE" env-default:"100"`
	SlackChannel string `yaml:"slack_channel" env:"NOTIFY_SLACK_CHANNEL" env-default:"#fraud-alerts"`
	SecurityMail string `yaml:"security_mail" env:"NOTIFY_SECURITY_MAIL" env-default:"security@smartbank.local"`
}

// Load reads LEDGER_CONFIG_FILE when set, then lets the environment override it.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("couldn't read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Ledger.LockTimeout <= 0:
		return fmt.Errorf("lock timeout must be positive, got %s", c.Ledger.LockTimeout)
	case c.Ledger.LockStripes <= 0:
		return fmt.Errorf("lock stripes must be positive, got %d", c.Ledger.LockStripes)
	case c.Fraud.Contamination <= 0 || c.Fraud.Contamination >= 0.5:
		return fmt.Errorf("contamination must be in (0, 0.5), got %v", c.Fraud.Contamination)
	case c.Fraud.Trees <= 0:
		return fmt.Errorf("tree count must be positive, got %d", c.Fraud.Trees)
	case c.Notification.Workers <= 0:
		return fmt.Errorf("notification workers must be positive, got %d", c.Notification.Workers)
	}
	return nil
}
