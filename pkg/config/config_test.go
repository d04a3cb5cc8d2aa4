package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifebank/notifykit/pkg/config"
)

type defaultsConfig struct {
	Name    string        `env:"CFG_TEST_DEFAULT_NAME" envDefault:"notifier"`
	Workers int           `env:"CFG_TEST_DEFAULT_WORKERS" envDefault:"4"`
	Poll    time.Duration `env:"CFG_TEST_DEFAULT_POLL" envDefault:"250ms"`
}

type overrideConfig struct {
	Name string `env:"CFG_TEST_OVERRIDE_NAME" envDefault:"notifier"`
}

type requiredConfig struct {
	Value string `env:"CFG_TEST_REQUIRED_VALUE,required"`
}

type cachedConfig struct {
	Value string `env:"CFG_TEST_CACHED_VALUE"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "notifier", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CFG_TEST_OVERRIDE_NAME", "worker")

	var cfg overrideConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "worker", cfg.Name)
}

func TestLoad_RequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_CachedPerType(t *testing.T) {
	t.Setenv("CFG_TEST_CACHED_VALUE", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CFG_TEST_CACHED_VALUE", "second")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	assert.ErrorIs(t, config.Load[defaultsConfig](nil), config.ErrNilPointer)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
