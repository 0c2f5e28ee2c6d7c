// Package clapdebug holds diagnostic-only tooling that is not part of any
// documented contract: an optional zap sink for a per-process debug log,
// and a WAV dump helper for inspecting one processed audio block by hand.
// Both the generator and fx facades call into this package, but only take
// effect when the CLAP_FX_DEBUG_LOG environment variable is set.
package clapdebug

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar is the environment variable that gates debug logging. The
// original wrote unconditionally to /tmp/clap_fx_debug.txt; this rewrite
// keeps that diagnostic intent but makes it opt-in.
const EnvVar = "CLAP_FX_DEBUG_LOG"

// NewLogger returns a development zap.Logger that also appends to path
// when the gating environment variable is set, or a no-op core's worth of
// extra output otherwise. Callers always get a usable logger either way.
func NewLogger(path string) (*zap.Logger, error) {
	base, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	if os.Getenv(EnvVar) == "" {
		return base, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		base.Warn("clapdebug: could not open debug log, continuing without it",
			zap.String("path", path), zap.Error(err))
		return base, nil
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	return zap.New(zapcore.NewTee(base.Core(), fileCore)), nil
}

// DumpWAV writes a mono or stereo int16 block to a 16-bit PCM WAV file,
// useful for pulling one processed block out of a running host for manual
// listening.
func DumpWAV(path string, samples []int16, channels, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	defer enc.Close()

	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   ints,
	}
	return enc.Write(buf)
}
