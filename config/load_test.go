package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "archon.db", cfg.Database.Path)
	assert.Equal(t, ":8710", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Chain.MaxSteps)
	assert.Equal(t, 10, cfg.Chain.MaxContextTurns)
	assert.Equal(t, 1, cfg.Worker.Workers)
	assert.Equal(t, "archon-scheduler", cfg.Auth.InternalIssuer)
	assert.Equal(t, "archon-internal", cfg.Auth.InternalAudience)
}

func TestValidateRejectsBadValues(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("chain.max_steps", 0)

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.max_steps")

	v = viper.New()
	SetDefaults(v)
	v.Set("worker.workers", -1)
	_, err = LoadWithViper(v)
	require.Error(t, err)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("chain.max_steps", 5)
	v.Set("server.addr", "127.0.0.1:9000")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Chain.MaxSteps)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}
