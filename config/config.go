// Package config loads server configuration from flags and environment
// variables via viper bound to a pflag flag set (spec.md §6/§10 ambient
// configuration).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AuthMode selects how incoming connections are authenticated.
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthToken AuthMode = "token"
)

// Config is the full set of knobs a running yrepl server reads at startup.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	AuthMode  AuthMode `mapstructure:"auth_mode"`
	AuthToken string   `mapstructure:"auth_token"`

	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`

	GCInterval  time.Duration `mapstructure:"gc_interval"`
	UndoCapture time.Duration `mapstructure:"undo_capture_timeout"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

var defaults = Config{
	ListenAddr:  ":8080",
	AuthMode:    AuthNone,
	RedisAddr:   "localhost:6379",
	RedisDB:     0,
	GCInterval:  30 * time.Second,
	UndoCapture: 500 * time.Millisecond,
	CORSOrigins: []string{"*"},
}

// Load binds pflag flags (parsed from args) and the YREPL_ environment
// prefix into viper, applying defaults for anything unset.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("yreplserver", pflag.ContinueOnError)
	fs.String("listen-addr", defaults.ListenAddr, "HTTP/WebSocket listen address")
	fs.String("auth-mode", string(defaults.AuthMode), "connection auth mode: none|token")
	fs.String("auth-token", "", "shared token required when auth-mode=token")
	fs.String("redis-addr", defaults.RedisAddr, "Redis address for persistence")
	fs.Int("redis-db", defaults.RedisDB, "Redis logical DB index")
	fs.Duration("gc-interval", defaults.GCInterval, "background GC sweep interval")
	fs.Duration("undo-capture-timeout", defaults.UndoCapture, "undo coalescing window")
	fs.StringSlice("cors-origins", defaults.CORSOrigins, "allowed CORS origins")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("YREPL")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	cfg := &Config{
		ListenAddr:  v.GetString("listen-addr"),
		AuthMode:    AuthMode(v.GetString("auth-mode")),
		AuthToken:   v.GetString("auth-token"),
		RedisAddr:   v.GetString("redis-addr"),
		RedisDB:     v.GetInt("redis-db"),
		GCInterval:  v.GetDuration("gc-interval"),
		UndoCapture: v.GetDuration("undo-capture-timeout"),
		CORSOrigins: v.GetStringSlice("cors-origins"),
	}

	if cfg.AuthMode != AuthNone && cfg.AuthMode != AuthToken {
		return nil, fmt.Errorf("config: unknown auth-mode %q", cfg.AuthMode)
	}
	if cfg.AuthMode == AuthToken && cfg.AuthToken == "" {
		return nil, fmt.Errorf("config: auth-mode=token requires auth-token")
	}
	return cfg, nil
}
