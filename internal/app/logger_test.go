package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	logger, closer := newLogger("warn", "text", &out, "")
	defer closer.Close()
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	logger, _ := newLogger("info", "json", &out, "")
	logger.Info("hello", "k", "v")

	assert.Contains(t, out.String(), `"msg":"hello"`)
	assert.Contains(t, out.String(), `"k":"v"`)
}

func TestNewLogger_FileSink(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "opcalc.log")

	// --- Act ---
	logger, closer := newLogger("info", "text", &out, file)
	logger.Info("Application started.")
	require.NoError(t, closer.Close())

	// --- Assert ---
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Application started.")
	assert.Contains(t, out.String(), "Application started.")
}
