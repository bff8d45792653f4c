package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixture(t *testing.T) {
	t.Setenv("NSECORP_TEST_KEY", "ds-secret")

	cfg, err := config.Load("test_fixtures/nsecorp.yml")
	require.NoError(t, err)

	fixtureDir, err := filepath.Abs("test_fixtures")
	require.NoError(t, err)

	assert.Equal(t, config.DriverChromedp, cfg.Driver)
	assert.Equal(t, []string{"SME", "Debt"}, cfg.Source.Tabs)
	assert.Equal(t, config.DefaultSourceURL, cfg.Source.URL, "unset keys keep defaults")
	assert.Equal(t, filepath.Join(fixtureDir, "downloads"), cfg.Storage.DataDir)
	assert.Equal(t, "/var/lib/nsecorp/actions.db", cfg.Storage.DBPath)
	assert.Equal(t, "ca_daily", cfg.Storage.Table)
	assert.Equal(t, "ds-secret", cfg.Agent.Provider.APIKey)
	assert.Equal(t, 5, cfg.Scripted.Attempts)
	assert.Equal(t, 90*time.Second, cfg.Scripted.DownloadTimeout)
	assert.Equal(t, config.DefaultMaxSteps, cfg.MaxSteps())
	assert.Empty(t, cfg.Unresolved)
	require.NoError(t, cfg.Validate())
}

func TestLoad_UnresolvedEnvIsReported(t *testing.T) {
	os.Unsetenv("NSECORP_TEST_KEY")
	t.Setenv("DEEPSEEK_API_KEY", "")

	cfg, err := config.Load("test_fixtures/nsecorp.yml")
	require.NoError(t, err)
	assert.Equal(t, []string{"NSECORP_TEST_KEY"}, cfg.Unresolved)
	assert.Empty(t, cfg.Agent.Provider.APIKey)
}

func TestLoad_ProviderKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := config.Parse([]byte("driver: browser_agent\n"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Agent.Provider.APIKey)
	assert.Equal(t, []string{"sk-from-env"}, cfg.Secrets())
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, found, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, config.DriverBrowserAgent, cfg.Driver)
	assert.True(t, filepath.IsAbs(cfg.Storage.DataDir))
	assert.Equal(t, config.DefaultTable, cfg.Storage.Table)
	require.NoError(t, cfg.Validate())
}

func TestLoadBrokenFixture(t *testing.T) {
	cfg, err := config.Load("test_fixtures/broken.yml")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a valid table name")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := config.Parse([]byte("source: [unterminated"), t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *config.Config)
		errorMsg string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:     "non-http source",
			mutate:   func(c *config.Config) { c.Source.URL = "ftp://nseindia.com" },
			errorMsg: "must use http or https",
		},
		{
			name:     "prefix with separator",
			mutate:   func(c *config.Config) { c.Source.FilePrefix = "../evil" },
			errorMsg: "must not contain path separators",
		},
		{
			name:     "duplicate tab",
			mutate:   func(c *config.Config) { c.Source.Tabs = []string{"SME", "SME"} },
			errorMsg: "duplicate tab",
		},
		{
			name:     "unknown driver",
			mutate:   func(c *config.Config) { c.Driver = "selenium" },
			errorMsg: "is not one of",
		},
		{
			name:     "agent without steps",
			mutate:   func(c *config.Config) { c.Agent.MaxSteps = 0 },
			errorMsg: "agent.max_steps must be greater than 0",
		},
		{
			name:     "unsupported provider",
			mutate:   func(c *config.Config) { c.Agent.Provider.Type = "anthropic-local" },
			errorMsg: "is not supported",
		},
		{
			name: "scripted tab selector without placeholder",
			mutate: func(c *config.Config) {
				c.Driver = config.DriverChromedp
				c.Scripted.TabSelector = "//a[@role='tab']"
			},
			errorMsg: "must contain exactly one %s",
		},
		{
			name: "scripted zero attempts",
			mutate: func(c *config.Config) {
				c.Driver = config.DriverChromedp
				c.Scripted.Attempts = 0
			},
			errorMsg: "scripted.attempts must be at least 1",
		},
		{
			name:     "bad log level",
			mutate:   func(c *config.Config) { c.Logging.Level = "loud" },
			errorMsg: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestAgentTask(t *testing.T) {
	cfg := config.Default()
	task := cfg.AgentTask()

	assert.Contains(t, task, config.DefaultSourceURL)
	assert.Contains(t, task, "2. Download the CSV file")
	assert.Contains(t, task, "3. Select the 'SME' tab and download the CSV file")
	assert.Contains(t, task, "5. Select the 'MF' tab and download the CSV file")
	assert.Len(t, strings.Split(strings.TrimSpace(task), "\n"), 5)

	cfg.Agent.Task = "custom"
	assert.Equal(t, "custom", cfg.AgentTask())
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")

	cfg, err := config.Load("../../nsecorp.example.yml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	defaults := config.Default()
	assert.Equal(t, defaults.Source, cfg.Source)
	assert.Equal(t, defaults.Scripted.MaxSteps, cfg.Scripted.MaxSteps)
	assert.Equal(t, defaults.Agent.Timeout, cfg.Agent.Timeout)
	assert.Equal(t, "sk-example", cfg.Agent.Provider.APIKey)
}
