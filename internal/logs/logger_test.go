package logs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wifistate-go/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel(LogLevelTrace))
	assert.Equal(t, zap.DebugLevel, ParseLevel(LogLevelDebug))
	assert.Equal(t, zap.InfoLevel, ParseLevel(LogLevelInfo))
	assert.Equal(t, zap.WarnLevel, ParseLevel(LogLevelWarn))
	assert.Equal(t, zap.ErrorLevel, ParseLevel(LogLevelError))
	assert.Equal(t, zap.InfoLevel, ParseLevel("whatever"))
}

func TestSetupLogger_FileOutput(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultLogConfig()
	cfg.EnableConsole = false
	cfg.EnableFile = true
	cfg.JSONFormat = true
	cfg.Filename = "test.log"

	logger, err := SetupLogger(cfg, dataDir)
	require.NoError(t, err)

	logger.Named("controller").Info("state changed", zap.String("state", "connected"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dataDir, "logs", "test.log"))
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"state":"connected"`), line)
	assert.True(t, strings.Contains(line, `"logger":"controller"`), line)
}

func TestSetupLogger_LevelFiltersDebug(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultLogConfig()
	cfg.EnableConsole = false
	cfg.EnableFile = true
	cfg.Level = LogLevelWarn

	logger, err := SetupLogger(cfg, dataDir)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("visible")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dataDir, "logs", cfg.Filename))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestSetupLogger_NoCores(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.EnableConsole = false

	logger, err := SetupLogger(cfg, t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestResolveLogDir(t *testing.T) {
	cfg := config.DefaultLogConfig()
	assert.Equal(t, filepath.Join("/data", "logs"), ResolveLogDir(cfg, "/data"))

	cfg.LogDir = "/var/log/wifistate"
	assert.Equal(t, "/var/log/wifistate", ResolveLogDir(cfg, "/data"))
}
