package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
community: hive-115276
required_metadata:
  app: checkinecuador/1.0.0
  developer: menobass
  tags: [introduceyourself, checkin]
  beneficiary:
    account: hiveecuador
    weight: 8000
  country: Ecuador
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func setCredentials(t *testing.T) {
	t.Helper()

	t.Setenv("HIVE_ACCOUNT_NAME", "checkinbot")
	t.Setenv("HIVE_POSTING_KEY", "posting")
	t.Setenv("HIVE_ACTIVE_KEY", "active")
	t.Setenv("HIVE_NODE", "")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "hive-115276", cfg.Community)
	assert.Equal(t, []string{FieldOnboarder, FieldImage}, cfg.RequiredMetadata.RequiredFields)
	assert.Equal(t, "1.000 HBD", cfg.Transfer().String())
	assert.Equal(t, "5", cfg.MinBalance().String())
	assert.Equal(t, 100, cfg.VotePercentage)
	assert.Equal(t, 10, cfg.MaxDailyTransfers)
	assert.Equal(t, 60*time.Second, cfg.CheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.MaxPostAge)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.True(t, cfg.DryRunConsumesSlots)
	assert.False(t, cfg.Match.Normalize)
	assert.Equal(t, "processed_posts.db", cfg.DatabaseFile)
	assert.Equal(t, "https://api.hive.blog", cfg.NodeURL)
	assert.Equal(t, "checkinbot", cfg.Account)
	assert.True(t, cfg.RequiredMetadata.RequiresField(FieldImage))
}

func TestLoadOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("HIVE_NODE", "https://rpc.example.org")

	cfg, err := Load(writeConfig(t, minimalConfig+`
transfer_amount: 0.5
transfer_asset: HIVE
vote_percentage: 50
max_daily_transfers: 0
check_interval: 5m
timezone: America/Guayaquil
dry_run_consumes_slots: false
match:
  normalize: true
`))
	require.NoError(t, err)

	assert.Equal(t, "0.500 HIVE", cfg.Transfer().String())
	assert.Equal(t, 50, cfg.VotePercentage)
	assert.Equal(t, 0, cfg.MaxDailyTransfers)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	assert.Equal(t, "America/Guayaquil", cfg.Location().String())
	assert.False(t, cfg.DryRunConsumesSlots)
	assert.True(t, cfg.Match.Normalize)
	assert.Equal(t, "https://rpc.example.org", cfg.NodeURL)
}

func TestDryRunKeysOptional(t *testing.T) {
	setCredentials(t)
	t.Setenv("HIVE_POSTING_KEY", "")
	t.Setenv("HIVE_ACTIVE_KEY", "")

	_, err := Load(writeConfig(t, minimalConfig))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, minimalConfig+"dry_run: true\n"))
	assert.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty community", func(c *Config) { c.Community = "" }},
		{"missing account", func(c *Config) { c.Account = "" }},
		{"missing app", func(c *Config) { c.RequiredMetadata.App = "" }},
		{"no tags", func(c *Config) { c.RequiredMetadata.Tags = nil }},
		{"beneficiary weight", func(c *Config) { c.RequiredMetadata.Beneficiary.Weight = 10001 }},
		{"unknown required field", func(c *Config) { c.RequiredMetadata.RequiredFields = []string{"avatar"} }},
		{"zero amount", func(c *Config) { c.TransferAmount = "0" }},
		{"amount precision", func(c *Config) { c.TransferAmount = "1.0001" }},
		{"unknown asset", func(c *Config) { c.TransferAsset = "BTC" }},
		{"vote percentage", func(c *Config) { c.VotePercentage = 101 }},
		{"negative cap", func(c *Config) { c.MaxDailyTransfers = -1 }},
		{"interval", func(c *Config) { c.CheckInterval = 0 }},
		{"fetch limit", func(c *Config) { c.FetchLimit = 50 }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"template", func(c *Config) { c.WelcomeMessage = "{{.Author" }},
		{"stats schedule", func(c *Config) { c.StatsSchedule = "every now and then" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalConfig))
			require.NoError(t, err)
			cfg.Account = "checkinbot"
			cfg.DryRun = true

			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPathFromEnvironment(t *testing.T) {
	t.Setenv("CHECKINBOT_CONFIG", "/etc/checkinbot.yaml")
	assert.Equal(t, "/etc/checkinbot.yaml", Path())

	t.Setenv("CHECKINBOT_CONFIG", "")
	assert.Equal(t, DefaultPath, Path())
}
