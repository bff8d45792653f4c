package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks fields at the config level: source, storage, driver and logging.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Source.URL)
	if err != nil || c.Source.URL == "" {
		return fmt.Errorf("source.url %q is not a valid URL", c.Source.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source.url %q must use http or https", c.Source.URL)
	}

	if c.Source.FilePrefix == "" {
		return fmt.Errorf("source.file_prefix must not be empty")
	}
	if strings.ContainsAny(c.Source.FilePrefix, `/\`) {
		return fmt.Errorf("source.file_prefix %q must not contain path separators", c.Source.FilePrefix)
	}

	tabNames := make(map[string]bool)
	for i, tab := range c.Source.Tabs {
		if strings.TrimSpace(tab) == "" {
			return fmt.Errorf("source.tabs[%d] must not be empty", i)
		}
		if tabNames[tab] {
			return fmt.Errorf("duplicate tab: %q", tab)
		}
		tabNames[tab] = true
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must not be empty")
	}
	if !identRe.MatchString(c.Storage.Table) {
		return fmt.Errorf("storage.table %q is not a valid table name", c.Storage.Table)
	}

	switch c.Driver {
	case DriverBrowserAgent:
		if err := c.Agent.validate(); err != nil {
			return err
		}
	case DriverChromedp:
		if err := c.Scripted.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("driver %q is not one of %q, %q", c.Driver, DriverBrowserAgent, DriverChromedp)
	}

	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level %q is invalid: %w", c.Logging.Level, err)
		}
	}

	return nil
}

func (a AgentConfig) validate() error {
	if a.Provider.Type == "" {
		return fmt.Errorf("agent.provider is missing 'type'")
	}
	if FallbackKeyName(a.Provider.Type) == "" {
		return fmt.Errorf("agent.provider.type %q is not supported", a.Provider.Type)
	}
	if a.Provider.Model == "" {
		return fmt.Errorf("agent.provider is missing 'model'")
	}
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be greater than 0")
	}
	if a.MaxFailures < 0 {
		return fmt.Errorf("agent.max_failures must not be less than 0")
	}
	for i, domain := range a.AllowedDomains {
		if domain == "" {
			return fmt.Errorf("agent.allowed_domains[%d] must not be an empty string", i)
		}
	}
	if a.Timeout < 0 {
		return fmt.Errorf("agent.timeout must not be negative")
	}
	return nil
}

func (s ScriptedConfig) validate() error {
	if s.MaxSteps <= 0 {
		return fmt.Errorf("scripted.max_steps must be greater than 0")
	}
	if s.Attempts < 1 {
		return fmt.Errorf("scripted.attempts must be at least 1")
	}
	if s.StepTimeout <= 0 {
		return fmt.Errorf("scripted.step_timeout must be greater than 0")
	}
	if s.DownloadTimeout <= 0 {
		return fmt.Errorf("scripted.download_timeout must be greater than 0")
	}
	if s.DownloadSelector == "" {
		return fmt.Errorf("scripted.download_selector must not be empty")
	}
	if strings.Count(s.TabSelector, "%s") != 1 {
		return fmt.Errorf("scripted.tab_selector %q must contain exactly one %%s", s.TabSelector)
	}
	return nil
}
