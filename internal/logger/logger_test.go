package logger

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stdout carries the daemon's reply protocol, so console log lines must
// never land there.
func TestNew_ConsoleWritesToStderrOnly(t *testing.T) {
	origOut, origErr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	errR, errW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = outW, errW
	defer func() { os.Stdout, os.Stderr = origOut, origErr }()

	lg, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	zl := lg.GetZerolog()
	zl.Info().Msg("console routing check")
	require.NoError(t, lg.Close())

	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())
	os.Stdout, os.Stderr = origOut, origErr

	stdout, err := io.ReadAll(outR)
	require.NoError(t, err)
	stderr, err := io.ReadAll(errR)
	require.NoError(t, err)

	assert.Empty(t, string(stdout))
	assert.Contains(t, string(stderr), "console routing check")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sela.log")

	lg, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	zl := lg.GetZerolog()
	zl.Info().Str("module", "test").Msg("file routing check")
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file routing check")
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	lg, err := New(Config{Level: "chatty", File: filepath.Join(t.TempDir(), "sela.log")})
	require.NoError(t, err)
	defer lg.Close()

	assert.Equal(t, "info", lg.GetZerolog().GetLevel().String())
}
