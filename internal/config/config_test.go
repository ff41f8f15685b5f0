package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
timezone: Europe/Berlin
log_level: DEBUG
preview:
  default_horizon:
    mode: Count
    value: 0
basic_auth:
  username: ""
  password: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500, cfg.Preview.SafetyCap)
	assert.Equal(t, HorizonConfig{Mode: "count", Value: 3}, cfg.Preview.DefaultHorizon)
	assert.Nil(t, cfg.BasicAuth)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Locale = "de"
	cfg.BasicAuth = &BasicAuthConfig{Username: "box", Password: "office"}

	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"VENUECAL_LISTEN":              ":7000",
		"VENUECAL_LOCALE":              "fr",
		"VENUECAL_SAFETY_CAP":          "50",
		"VENUECAL_SWEEP":               "@daily",
		"VENUECAL_BASIC_AUTH_USER":     "admin",
		"VENUECAL_BASIC_AUTH_PASSWORD": "s3cret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "fr", cfg.Locale)
	assert.Equal(t, 50, cfg.Preview.SafetyCap)
	assert.Equal(t, "@daily", cfg.SweepCron)
	assert.Equal(t, &BasicAuthConfig{Username: "admin", Password: "s3cret"}, cfg.BasicAuth)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "VENUECAL_SAFETY_CAP" {
			return "lots", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "VENUECAL_SAFETY_CAP")
}

func TestLocation_FallsBackToLocal(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus_Mons"}
	assert.NotNil(t, cfg.Location())
}
