package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$10$hash")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DBConn)
	assert.Equal(t, 24*time.Hour, cfg.TokenExpiry)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5.0, cfg.BankMargin)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$10$hash")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("BANK_MARGIN", "2.5")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("NOTIFY_EMAIL", "ops@example.com")
	t.Setenv("NOTIFY_ALL", "true")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 2.5, cfg.BankMargin)
	assert.True(t, cfg.NotifyAll)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing operator hash", env: map[string]string{"OPERATOR_PASSWORD_HASH": ""}},
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "soon"}},
		{name: "bad margin", env: map[string]string{"BANK_MARGIN": "five"}},
		{name: "bad burst", env: map[string]string{"RATE_BURST": "1.5"}},
		{name: "smtp without recipient", env: map[string]string{"SMTP_HOST": "smtp.example.com", "NOTIFY_EMAIL": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPERATOR_PASSWORD_HASH", "$2a$10$hash")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}
