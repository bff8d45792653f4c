package browseragent

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/downloader/drivers/browseragent/assets"
	"github.com/arnavsurve/nsecorp/pkg/types"
)

const (
	venvDirName          = "nsecorp_agent_venv"
	requirementsHashFile = ".requirements_hash"
)

// ensurePythonVenv creates (or recreates, when the embedded requirements.txt
// changed) the agent's virtualenv under baseCacheDir and returns the path of
// its python executable.
func ensurePythonVenv(ctx context.Context, baseCacheDir string, logger types.Logger) (string, error) {
	venvPath := filepath.Join(baseCacheDir, venvDirName)
	pythonInterpreter := filepath.Join(venvPath, "bin", "python")
	pipExecutable := filepath.Join(venvPath, "bin", "pip")

	reqBytes, err := assets.GetAgentScriptContent(assets.RequirementsFile)
	if err != nil {
		return "", fmt.Errorf("reading embedded requirements.txt: %w", err)
	}
	currentReqHash := fmt.Sprintf("%x", sha256.Sum256(reqBytes))
	storedReqHashPath := filepath.Join(venvPath, requirementsHashFile)

	recreateVenv := false
	if _, statErr := os.Stat(pythonInterpreter); os.IsNotExist(statErr) {
		logger.Debug().Msg("Python venv not found, creating...")
		recreateVenv = true
	} else {
		storedReqHash, err := os.ReadFile(storedReqHashPath)
		if err != nil || string(storedReqHash) != currentReqHash {
			logger.Debug().Msg("Agent requirements changed or hash file missing, recreating venv...")
			recreateVenv = true
			if err := os.RemoveAll(venvPath); err != nil {
				logger.Warn().Err(err).Str("path", venvPath).Msg("Failed to remove old venv")
			}
		}
	}

	if !recreateVenv {
		logger.Info().Msg("Existing Python venv found")
		return pythonInterpreter, nil
	}

	if err := os.MkdirAll(venvPath, 0755); err != nil {
		return "", fmt.Errorf("creating venv directory %s: %w", venvPath, err)
	}

	// Assumes python3 is on PATH and can create venvs
	if err := runQuiet(ctx, logger, "python3", "-m", "venv", venvPath); err != nil {
		return "", fmt.Errorf("creating python venv at %s: %w", venvPath, err)
	}
	logger.Info().Msg("Python venv created successfully")

	tempReqFile, err := os.CreateTemp(baseCacheDir, "requirements-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating temporary requirements.txt: %w", err)
	}
	defer os.Remove(tempReqFile.Name())

	if _, err := tempReqFile.Write(reqBytes); err != nil {
		tempReqFile.Close()
		return "", fmt.Errorf("writing temporary requirements.txt: %w", err)
	}
	tempReqFile.Close()

	if err := runQuiet(ctx, logger, pipExecutable, "install", "-r", tempReqFile.Name()); err != nil {
		return "", fmt.Errorf("installing agent requirements: %w", err)
	}
	// browser-use drives Chromium through playwright, which ships its browser separately
	if err := runQuiet(ctx, logger, pythonInterpreter, "-m", "playwright", "install", "chromium"); err != nil {
		return "", fmt.Errorf("installing playwright chromium: %w", err)
	}
	logger.Info().Msg("Python requirements installed successfully")

	if err := os.WriteFile(storedReqHashPath, []byte(currentReqHash), 0644); err != nil {
		logger.Warn().Err(err).Str("path", storedReqHashPath).Msg("Failed to write requirements hash")
	}
	return pythonInterpreter, nil
}

func runQuiet(ctx context.Context, logger types.Logger, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logger.Debug().Str("command", cmd.String()).Msg("Executing subprocess call")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w. Stderr: %s", cmd.String(), err, stderr.String())
	}
	return nil
}

// SubprocessAgentRunner runs the embedded Python browser agent in a child
// process. The venv is prepared lazily on the first run.
type SubprocessAgentRunner struct {
	cacheDir string

	mu       sync.Mutex
	venvPy   string
	cancel   context.CancelFunc
	closed   bool
	closeErr error
}

// NewSubprocessAgentRunner picks the cache directory for the venv and run dirs.
func NewSubprocessAgentRunner(logger types.Logger) (*SubprocessAgentRunner, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		logger.Warn().Err(err).Msg("Could not get user cache dir, using temp dir for agent")
		userCacheDir = os.TempDir()
	}
	appCacheDir := filepath.Join(userCacheDir, "nsecorp")
	if err := os.MkdirAll(appCacheDir, 0755); err != nil {
		return nil, fmt.Errorf("creating app cache directory %s: %w", appCacheDir, err)
	}
	return &SubprocessAgentRunner{cacheDir: appCacheDir}, nil
}

// BuildArgs renders the command line handed to the agent script.
func BuildArgs(run AgentRequest) []string {
	args := []string{
		"--task", run.Task,
		"--out", run.OutputPath,
		"--download-dir", run.DownloadDir,
		"--provider", run.Provider,
		"--model", run.Model,
		"--max-steps", strconv.Itoa(run.MaxSteps),
		"--max-failures", strconv.Itoa(run.MaxFailures),
	}
	if len(run.AllowedDomains) > 0 {
		args = append(args, "--allowed-domains")
		args = append(args, run.AllowedDomains...)
	}
	if run.Headless {
		args = append(args, "--headless")
	}
	if run.DisableSecurity {
		args = append(args, "--disable-security")
	}
	return args
}

// BuildEnv returns the child environment: the parent's plus the provider key
// under both its conventional name and NSECORP_LLM_API_KEY.
func BuildEnv(base []string, run AgentRequest, venvPython, mainPy string) []string {
	env := append([]string{}, base...)
	env = append(env,
		"ANONYMIZED_TELEMETRY=false",
		"NSECORP_VENV_PYTHON="+venvPython,
		"NSECORP_AGENT_PY_PATH="+mainPy,
		"NSECORP_LLM_API_KEY="+run.APIKey,
	)
	if name := config.FallbackKeyName(run.Provider); name != "" && run.APIKey != "" {
		env = append(env, name+"="+run.APIKey)
	}
	return env
}

func (s *SubprocessAgentRunner) RunAgent(ctx context.Context, run AgentRequest, logger types.Logger) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("agent runner is closed")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.venvPy == "" {
		venvPy, err := ensurePythonVenv(runCtx, s.cacheDir, logger)
		if err != nil {
			return nil, fmt.Errorf("ensuring python venv: %w", err)
		}
		s.venvPy = venvPy
	}

	runTempDir, err := os.MkdirTemp(s.cacheDir, "agentrun-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary run directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runTempDir); err != nil {
			logger.Warn().Str("directory", runTempDir).Err(err).Msg("Failed to remove agent run temp directory")
		}
	}()

	for _, scriptName := range assets.ScriptFiles {
		content, err := assets.GetAgentScriptContent(scriptName)
		if err != nil {
			return nil, fmt.Errorf("reading embedded script %s: %w", scriptName, err)
		}
		destPath := filepath.Join(runTempDir, scriptName)
		if err := os.WriteFile(destPath, content, 0755); err != nil {
			return nil, fmt.Errorf("writing embedded script %s to %s: %w", scriptName, destPath, err)
		}
	}

	runScript := filepath.Join(runTempDir, assets.RunScriptFile)
	cmd := exec.CommandContext(runCtx, runScript, BuildArgs(run)...)
	cmd.Env = BuildEnv(os.Environ(), run, s.venvPy, filepath.Join(runTempDir, assets.MainPyFile))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	logger.Info().Int("max_steps", run.MaxSteps).Str("model", run.Model).Msg("Starting browser agent")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting agent script %s: %w", runScript, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamOutputStructured(stdout, &wg, "STDOUT", logger)
	go streamOutputStructured(stderr, &wg, "STDERR", logger)
	wg.Wait()
	waitErr := cmd.Wait()

	summary, readErr := os.ReadFile(run.OutputPath)
	if waitErr != nil {
		if readErr == nil {
			return summary, fmt.Errorf("agent script failed: %w", waitErr)
		}
		return nil, fmt.Errorf("agent script failed: %w", waitErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("reading agent output file %s: %w", run.OutputPath, readErr)
	}
	return summary, nil
}

// Close stops a running agent (and with it the browser it owns). Further runs
// are refused.
func (s *SubprocessAgentRunner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return s.closeErr
}

func streamOutputStructured(r io.Reader, wg *sync.WaitGroup, source string, logger types.Logger) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Info().
			Str("source", source).
			Str("agent_line", scanner.Text()).
			Msg("Agent output")
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return
		}
		logger.Error().Err(err).Str("source", source).Msg("Unexpected error streaming agent output")
	}
}
