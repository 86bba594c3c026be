package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	defer closer()

	logger.Info("ledger: hidden")
	logger.Warn("ledger: shown", slog.String("marketId", "1"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ledger: shown", rec["msg"])
	assert.Equal(t, "1", rec["marketId"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf)
	logger.Info("server: listening", slog.Int("port", 8080))
	assert.Contains(t, buf.String(), "port=8080")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ledger.log")
	var buf bytes.Buffer
	logger, closer := newLogger(config.LogConfig{Level: "info", File: path}, &buf)

	logger.Info("app: started")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app: started")
	assert.Contains(t, buf.String(), "app: started")
}
