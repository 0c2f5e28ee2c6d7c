package clapdebug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func TestDumpWAVWritesReadableStereoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block.wav")
	samples := []int16{100, -100, 200, -200}

	require.NoError(t, DumpWAV(path, samples, 2, 48000))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, 2, buf.Format.NumChannels)
	require.Equal(t, 48000, buf.Format.SampleRate)
	require.Equal(t, len(samples), len(buf.Data))
}

func TestNewLoggerWithoutEnvVarSkipsFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.txt")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hello")
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestNewLoggerWithEnvVarAppendsToFile(t *testing.T) {
	t.Setenv(EnvVar, "1")
	path := filepath.Join(t.TempDir(), "debug.txt")

	logger, err := NewLogger(path)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}
