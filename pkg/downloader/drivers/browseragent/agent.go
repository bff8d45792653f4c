package browseragent

import (
	"context"

	"github.com/arnavsurve/nsecorp/pkg/types"
)

// AgentRequest is everything one agent run needs.
type AgentRequest struct {
	Task            string
	DownloadDir     string
	OutputPath      string
	Provider        string
	Model           string
	APIKey          string
	MaxSteps        int
	MaxFailures     int
	Headless        bool
	DisableSecurity bool
	AllowedDomains  []string
}

// AgentRunner runs the LLM-driven browser agent and returns its JSON summary.
type AgentRunner interface {
	RunAgent(ctx context.Context, run AgentRequest, logger types.Logger) ([]byte, error)
	Close() error
}
