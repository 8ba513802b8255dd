package logging

import (
	"fmt"

	"github.com/go-ini/ini"
	log "github.com/sirupsen/logrus"
)

type Settings struct {
	Level         string `ini:"level"`
	FullTimestamp bool   `ini:"full_timestamp"`
}

func DefaultSettings() Settings {
	return Settings{
		Level:         log.InfoLevel.String(),
		FullTimestamp: true,
	}
}

// New builds a logger writing text lines; an unparsable level falls back to info.
func New(settings Settings) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp: settings.FullTimestamp,
	})
	level, err := log.ParseLevel(settings.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Load reads the [log] section of an ini file. Missing keys keep their defaults.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()
	cfg, err := ini.Load(path)
	if err != nil {
		return settings, fmt.Errorf("load log settings from %s: %w", path, err)
	}
	if err = cfg.Section("log").MapTo(&settings); err != nil {
		return settings, fmt.Errorf("map log settings: %w", err)
	}
	return settings, nil
}
