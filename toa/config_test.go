package toa

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "toa.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, `
[protocol]
send_workers = 4
report_interval = 1m
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.SendWorkers)
	require.Equal(t, DefaultSendQueueSize, cfg.SendQueueSize)
	require.Equal(t, time.Minute, cfg.ReportInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "[protocol]\nsend_workers = 0\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, 0, cfg.SendWorkers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.SendQueueSize = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	cfg = DefaultConfig()
	cfg.ReportInterval = -time.Second
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
