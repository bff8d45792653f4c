package config

import (
	"fmt"
	"time"
)

const (
	DriverBrowserAgent = "browser_agent"
	DriverChromedp     = "chromedp"

	DefaultSourceURL  = "https://www.nseindia.com/companies-listing/corporate-filings-actions"
	DefaultFilePrefix = "nse_corporate_actions"
	DefaultDataDir    = "data"
	DefaultDBPath     = "nse_corporate_actions.db"
	DefaultTable      = "corporate_actions"
	DefaultMaxSteps   = 20
)

// Config is the whole run configuration. It is built once at startup and
// passed down explicitly; nothing below the CLI reads the environment.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Storage  StorageConfig  `yaml:"storage"`
	Driver   string         `yaml:"driver"`
	Agent    AgentConfig    `yaml:"agent"`
	Scripted ScriptedConfig `yaml:"scripted"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Dir is the directory relative paths were resolved against.
	Dir string `yaml:"-"`
	// Unresolved lists env vars referenced by {{ env.* }} that were not set.
	Unresolved []string `yaml:"-"`
}

type SourceConfig struct {
	URL        string   `yaml:"url"`
	FilePrefix string   `yaml:"file_prefix"`
	Tabs       []string `yaml:"tabs"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
	Table   string `yaml:"table"`
}

type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

type AgentConfig struct {
	Provider        ProviderConfig `yaml:"provider"`
	Task            string         `yaml:"task"`
	MaxSteps        int            `yaml:"max_steps"`
	MaxFailures     int            `yaml:"max_failures"`
	Headless        bool           `yaml:"headless"`
	DisableSecurity bool           `yaml:"disable_security"`
	AllowedDomains  []string       `yaml:"allowed_domains"`
	Timeout         time.Duration  `yaml:"timeout"`
}

type ScriptedConfig struct {
	Headless         bool          `yaml:"headless"`
	MaxSteps         int           `yaml:"max_steps"`
	Attempts         int           `yaml:"attempts"`
	Backoff          time.Duration `yaml:"backoff"`
	StepTimeout      time.Duration `yaml:"step_timeout"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	ReadySelector    string        `yaml:"ready_selector"`
	DownloadSelector string        `yaml:"download_selector"`
	// TabSelector is a fmt pattern; %s is replaced by the tab name.
	TabSelector string `yaml:"tab_selector"`
	UserAgent   string `yaml:"user_agent"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			URL:        DefaultSourceURL,
			FilePrefix: DefaultFilePrefix,
			Tabs:       []string{"SME", "Debt", "MF"},
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
			DBPath:  DefaultDBPath,
			Table:   DefaultTable,
		},
		Driver: DriverBrowserAgent,
		Agent: AgentConfig{
			Provider: ProviderConfig{
				Type:  "openai",
				Model: "gpt-4o-mini",
			},
			MaxSteps:        DefaultMaxSteps,
			MaxFailures:     3,
			Headless:        true,
			DisableSecurity: true,
			AllowedDomains:  []string{"nseindia.com", "*.nseindia.com"},
			Timeout:         15 * time.Minute,
		},
		Scripted: ScriptedConfig{
			Headless:         true,
			MaxSteps:         DefaultMaxSteps,
			Attempts:         3,
			Backoff:          2 * time.Second,
			StepTimeout:      30 * time.Second,
			DownloadTimeout:  60 * time.Second,
			ReadySelector:    `//a[contains(normalize-space(.), 'Download (.csv)')]`,
			DownloadSelector: `//a[contains(normalize-space(.), 'Download (.csv)')]`,
			TabSelector:      `//a[@role='tab' and normalize-space(.)='%s']`,
			UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			File:       ".nsecorp/logs/nsecorp.log",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// DefaultTask renders the fixed instruction given to the browser agent.
func DefaultTask(sourceURL string, tabs []string) string {
	task := fmt.Sprintf("\n1. Go to the NSE corporate actions page (%s).\n2. Download the CSV file\n", sourceURL)
	for i, tab := range tabs {
		task += fmt.Sprintf("%d. Select the '%s' tab and download the CSV file\n", i+3, tab)
	}
	return task
}

// AgentTask is the configured task or the default one.
func (c *Config) AgentTask() string {
	if c.Agent.Task != "" {
		return c.Agent.Task
	}
	return DefaultTask(c.Source.URL, c.Source.Tabs)
}

// MaxSteps is the step budget of the selected driver.
func (c *Config) MaxSteps() int {
	if c.Driver == DriverChromedp {
		return c.Scripted.MaxSteps
	}
	return c.Agent.MaxSteps
}

// Secrets lists values that must never reach a log sink.
func (c *Config) Secrets() []string {
	return []string{c.Agent.Provider.APIKey}
}
