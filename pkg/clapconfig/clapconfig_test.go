package clapconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidConfig(t *testing.T) {
	cfg := Parse(`{"plugin_id":"demo.synth"}`)
	require.Equal(t, "demo.synth", cfg.PluginID)
}

func TestParseEmptyStringYieldsZeroValue(t *testing.T) {
	cfg := Parse("")
	require.Equal(t, Config{}, cfg)
}

func TestParseMalformedJSONYieldsZeroValue(t *testing.T) {
	cfg := Parse("{not valid json")
	require.Equal(t, Config{}, cfg)
}

func TestParseUnknownKeysAreIgnored(t *testing.T) {
	cfg := Parse(`{"plugin_id":"demo.fx","extra":123}`)
	require.Equal(t, "demo.fx", cfg.PluginID)
}
