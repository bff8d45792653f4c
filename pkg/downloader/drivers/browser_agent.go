// Package drivers holds the Driver implementations. Importing it registers
// them with the downloader registry.
package drivers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/downloader"
	"github.com/arnavsurve/nsecorp/pkg/downloader/drivers/browseragent"
	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/google/uuid"
)

// BrowserAgentDriver hands the download task to an LLM-driven browser agent.
type BrowserAgentDriver struct {
	Agent  browseragent.AgentRunner
	Config *config.Config
	Logger types.Logger
}

func init() {
	downloader.Register(config.DriverBrowserAgent, func(cfg *config.Config, logger types.Logger) (downloader.Driver, error) {
		if logger == nil {
			logger = log.Nop()
		}
		agentRunner, err := browseragent.NewSubprocessAgentRunner(logger)
		if err != nil {
			return nil, fmt.Errorf("initializing subprocess agent runner: %w", err)
		}
		return NewBrowserAgentDriver(cfg, agentRunner, logger), nil
	})
}

func NewBrowserAgentDriver(cfg *config.Config, agent browseragent.AgentRunner, logger types.Logger) *BrowserAgentDriver {
	if logger == nil {
		logger = log.Nop()
	}
	return &BrowserAgentDriver{Agent: agent, Config: cfg, Logger: logger}
}

func (d *BrowserAgentDriver) Validate() error {
	agent := d.Config.Agent

	if d.Config.AgentTask() == "" {
		return fmt.Errorf("browser_agent driver needs a task")
	}
	if agent.Provider.Type == "" {
		return fmt.Errorf("browser_agent driver must specify 'agent.provider.type'")
	}
	if config.FallbackKeyName(agent.Provider.Type) == "" {
		return fmt.Errorf("browser_agent driver: unsupported provider %q", agent.Provider.Type)
	}
	if agent.Provider.Model == "" {
		return fmt.Errorf("browser_agent driver must specify 'agent.provider.model'")
	}
	if agent.MaxSteps <= 0 {
		return fmt.Errorf("browser_agent driver: agent.max_steps must be greater than 0")
	}
	if agent.MaxFailures < 0 {
		return fmt.Errorf("browser_agent driver: agent.max_failures must not be less than 0")
	}
	for i, domain := range agent.AllowedDomains {
		if domain == "" {
			return fmt.Errorf("browser_agent driver: agent.allowed_domains[%d] must not be an empty string", i)
		}
	}

	if info, err := os.Stat(d.Config.Storage.DataDir); err != nil {
		if os.IsNotExist(err) {
			d.Logger.Warn().Str("path", d.Config.Storage.DataDir).Msg("Download directory does not exist yet, will attempt to create at runtime")
		} else {
			return fmt.Errorf("checking storage.data_dir path %q: %w", d.Config.Storage.DataDir, err)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("storage.data_dir %q is not a directory", d.Config.Storage.DataDir)
	}

	if agent.Provider.APIKey == "" {
		d.Logger.Warn().
			Str("provider", agent.Provider.Type).
			Str("env", config.FallbackKeyName(agent.Provider.Type)).
			Msg("No API key configured for the agent provider")
	}
	return nil
}

// Download runs the agent once. The agent saves files under their site
// names; only the file at req.ExpectedFile is picked up afterwards.
func (d *BrowserAgentDriver) Download(ctx context.Context, req types.DownloadRequest) (*types.DownloadResult, error) {
	agent := d.Config.Agent

	downloadDir, err := filepath.Abs(req.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for download directory %q: %w", req.DownloadDir, err)
	}
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory %q: %w", downloadDir, err)
	}

	if agent.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, agent.Timeout)
		defer cancel()
	}

	outputPath := filepath.Join(os.TempDir(), fmt.Sprintf("nsecorp-agent-%s.json", uuid.NewString()))
	defer os.Remove(outputPath)

	agentReq := browseragent.AgentRequest{
		Task:            req.Task,
		DownloadDir:     downloadDir,
		OutputPath:      outputPath,
		Provider:        agent.Provider.Type,
		Model:           agent.Provider.Model,
		APIKey:          agent.Provider.APIKey,
		MaxSteps:        req.MaxSteps,
		MaxFailures:     agent.MaxFailures,
		Headless:        agent.Headless,
		DisableSecurity: agent.DisableSecurity,
		AllowedDomains:  agent.AllowedDomains,
	}
	if agentReq.MaxSteps <= 0 {
		agentReq.MaxSteps = agent.MaxSteps
	}

	jsonData, runErr := d.Agent.RunAgent(ctx, agentReq, d.Logger)
	if runErr != nil && jsonData == nil {
		d.Logger.Error().Err(runErr).Msg("Agent execution failed")
		return nil, runErr
	}

	result, parseErr := parseAgentSummary(jsonData)
	if parseErr != nil {
		d.Logger.Error().Err(parseErr).Msg("Error parsing JSON output from agent")
		return &types.DownloadResult{Output: string(jsonData)}, errors.Join(runErr, parseErr)
	}

	d.Logger.Info().
		Bool("success", result.Success).
		Int("steps", result.Steps).
		Interface("downloads", result.Files).
		Msg("Received agent output")

	if runErr != nil {
		d.Logger.Error().Err(runErr).Msg("Agent execution failed")
		return result, runErr
	}
	if !result.Success {
		return result, fmt.Errorf("agent reported failure after %d steps: %v", result.Steps, result.Errors)
	}
	return result, nil
}

func parseAgentSummary(data []byte) (*types.DownloadResult, error) {
	var result types.DownloadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding agent summary: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		result.Output = raw
	}
	return &result, nil
}

// Close stops the agent subprocess if it is still running.
func (d *BrowserAgentDriver) Close() error {
	return d.Agent.Close()
}
