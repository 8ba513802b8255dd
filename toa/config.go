package toa

import (
	"fmt"
	"time"

	"github.com/go-ini/ini"
)

const (
	DefaultSendWorkers    = 1
	DefaultSendQueueSize  = 65535
	DefaultReportInterval = 10 * time.Second
)

type Config struct {
	// SendWorkers is the number of goroutines performing unicasts.
	SendWorkers   int `ini:"send_workers"`
	SendQueueSize int `ini:"send_queue_size"`
	// ReportInterval of zero disables the periodic report.
	ReportInterval time.Duration `ini:"report_interval"`
}

func DefaultConfig() Config {
	return Config{
		SendWorkers:    DefaultSendWorkers,
		SendQueueSize:  DefaultSendQueueSize,
		ReportInterval: DefaultReportInterval,
	}
}

func (c Config) Validate() error {
	if c.SendWorkers <= 0 {
		return fmt.Errorf("%w: send_workers must be positive, got %d", ErrInvalidConfig, c.SendWorkers)
	}
	if c.SendQueueSize < 0 {
		return fmt.Errorf("%w: send_queue_size must not be negative, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.ReportInterval < 0 {
		return fmt.Errorf("%w: report_interval must not be negative, got %s", ErrInvalidConfig, c.ReportInterval)
	}
	return nil
}

// LoadConfig reads the [protocol] section of an ini file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load protocol config from %s: %w", path, err)
	}
	if err = file.Section("protocol").MapTo(&cfg); err != nil {
		return cfg, fmt.Errorf("map protocol config: %w", err)
	}
	return cfg, cfg.Validate()
}
