package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/session"
)

func TestParseDebounce(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      time.Duration
		shouldErr bool
	}{
		{"bare integer is milliseconds", "750", 750 * time.Millisecond, false},
		{"ms suffix", "1500ms", 1500 * time.Millisecond, false},
		{"seconds suffix", "2s", 2 * time.Second, false},
		{"minutes suffix", "1m", time.Minute, false},
		{"zero", "0", 0, false},
		{"negative", "-5", 0, true},
		{"empty", "", 0, true},
		{"garbage", "soon", 0, true},
		{"fractional", "1.5s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDebounce(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCap(t *testing.T) {
	tests := []struct {
		input     string
		want      int
		shouldErr bool
	}{
		{"5", 5, false},
		{" 20 ", 20, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"many", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCap(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDrop(t *testing.T) {
	for _, valid := range []string{DropOld, DropNew, DropSummarize} {
		got, err := ParseDrop(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, got)
	}

	_, err := ParseDrop("oldest")
	assert.Error(t, err)
}

func TestValidMode(t *testing.T) {
	for _, valid := range []string{ModeInterrupt, ModeSteer, ModeFollowup, ModeCollect, ModeSteerBacklog} {
		assert.True(t, ValidMode(valid), valid)
	}
	assert.False(t, ValidMode("batch"))
	assert.False(t, ValidMode(""))
}

func TestEffectiveSettings_SessionOverridesDefaults(t *testing.T) {
	debounce := 2000
	cap := 5
	entry := session.Entry{
		QueueMode:       ModeCollect,
		QueueDebounceMs: &debounce,
		QueueCap:        &cap,
		QueueDrop:       DropSummarize,
	}
	defaults := config.QueueConfig{Mode: ModeFollowup, DebounceMs: 500, Cap: 10, Drop: DropOld}

	s := EffectiveSettings(entry, defaults)
	assert.Equal(t, ModeCollect, s.Mode)
	assert.Equal(t, 2*time.Second, s.Debounce)
	assert.Equal(t, 5, s.Cap)
	assert.Equal(t, DropSummarize, s.Drop)
}

func TestEffectiveSettings_FallsBackToDefaults(t *testing.T) {
	defaults := config.QueueConfig{Mode: ModeSteer, DebounceMs: 800, Cap: 15, Drop: DropNew}

	s := EffectiveSettings(session.Entry{}, defaults)
	assert.Equal(t, ModeSteer, s.Mode)
	assert.Equal(t, 800*time.Millisecond, s.Debounce)
	assert.Equal(t, 15, s.Cap)
	assert.Equal(t, DropNew, s.Drop)
}

func TestEffectiveSettings_BuiltinsWhenNothingConfigured(t *testing.T) {
	s := EffectiveSettings(session.Entry{}, config.QueueConfig{})
	assert.Equal(t, ModeCollect, s.Mode)
	assert.Equal(t, 1500*time.Millisecond, s.Debounce)
	assert.Equal(t, 20, s.Cap)
	assert.Equal(t, DropOld, s.Drop)
}
