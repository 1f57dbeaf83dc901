package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wxrelay.log")
	require.NoError(t, InitWithFile(false, FileOptions{Path: path}))

	Infof("station %s online", "home")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"station home online"`)
}

func TestLogHTTPRequestLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()

	LogHTTPRequest(logger, HTTPLogEntry{Method: "GET", Path: "/api/stations", Status: 200})
	LogHTTPRequest(logger, HTTPLogEntry{Method: "POST", Path: "/api/stations/x/rain", Status: 404})
	LogHTTPRequest(logger, HTTPLogEntry{Method: "POST", Path: "/api/stations/home/rain", Status: 500})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(404), entries[1].ContextMap()["status"])
}
