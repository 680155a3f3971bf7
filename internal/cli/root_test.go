package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The flag is an override; when unset, the configured logging level applies.
func TestLogLevelFlagDefaultsEmpty(t *testing.T) {
	f := GetRootCmd().PersistentFlags().Lookup("log-level")
	require.NotNil(t, f)
	assert.Equal(t, "", f.DefValue)
}

func TestRootCommandMetadata(t *testing.T) {
	cmd := GetRootCmd()
	assert.Equal(t, "sela", cmd.Use)
	assert.Equal(t, GetVersion(), cmd.Version)
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
