package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	require.NoError(t, Load(""))

	assert.Equal(t, "info", viper.GetString("loglevel"))
	assert.Equal(t, ":8085", viper.GetString("listen_addr"))
	assert.Equal(t, "http://localhost:8085", viper.GetString("server_url"))
	assert.Equal(t, time.Second, viper.GetDuration("poll_interval"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("poll_timeout"))
	assert.Equal(t, 10, viper.GetInt("transport_failure_threshold"))
	assert.Equal(t, 64, viper.GetInt("candidate_buffer_cap"))
	assert.Equal(t, 2*time.Hour, viper.GetDuration("call_ttl"))
	assert.Empty(t, viper.GetStringSlice("ice_servers"))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "loglevel: debug\npoll_interval: 250ms\nice_servers:\n  - stun:stun.example.com:3478\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	require.NoError(t, Load(path))

	assert.Equal(t, "debug", viper.GetString("loglevel"))
	assert.Equal(t, 250*time.Millisecond, viper.GetDuration("poll_interval"))
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, viper.GetStringSlice("ice_servers"))
	// Untouched keys keep their defaults.
	assert.Equal(t, ":8085", viper.GetString("listen_addr"))
}

func TestLoad_MissingFileIsTolerated(t *testing.T) {
	viper.Reset()
	require.NoError(t, Load(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Equal(t, "info", viper.GetString("loglevel"))
}

func TestLoad_MalformedFileFails(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loglevel: [unclosed"), 0o644))

	assert.Error(t, Load(path))
}
