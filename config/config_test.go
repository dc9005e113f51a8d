package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Polqt/yrepl/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, config.AuthNone, cfg.AuthMode)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := config.Load([]string{
		"--listen-addr", ":9090",
		"--auth-mode", "token",
		"--auth-token", "s3cret",
		"--redis-addr", "redis:6380",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, config.AuthToken, cfg.AuthMode)
	require.Equal(t, "s3cret", cfg.AuthToken)
	require.Equal(t, "redis:6380", cfg.RedisAddr)
}

func TestLoad_TokenModeRequiresToken(t *testing.T) {
	_, err := config.Load([]string{"--auth-mode", "token"})
	require.Error(t, err)
}

func TestLoad_RejectsUnknownAuthMode(t *testing.T) {
	_, err := config.Load([]string{"--auth-mode", "bogus"})
	require.Error(t, err)
}
