package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// envRe matches a whole scalar of the form {{ env.NAME }}.
var envRe = regexp.MustCompile(`^\s*\{\{\s*env\.([A-Za-z0-9_]+)\s*}}\s*$`)

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Load reads a YAML config file on top of Default(), resolves {{ env.* }}
// values, applies provider key fallbacks and makes relative paths absolute
// against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("determining absolute path for config file %q: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() resolved
// against the working directory when the file is missing.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, false, fmt.Errorf("determining working directory: %w", err)
	}
	cfg = Default()
	finalize(cfg, wd)
	return cfg, false, nil
}

// Parse decodes YAML bytes. baseDir anchors relative paths.
func Parse(data []byte, baseDir string) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	missing := make(map[string]struct{})
	resolveEnvNodes(&root, missing)

	cfg := Default()
	if len(root.Content) > 0 {
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	}

	for name := range missing {
		cfg.Unresolved = append(cfg.Unresolved, name)
	}
	sort.Strings(cfg.Unresolved)

	finalize(cfg, baseDir)
	return cfg, nil
}

// resolveEnvNodes rewrites scalar nodes holding {{ env.NAME }} in place.
func resolveEnvNodes(n *yaml.Node, missing map[string]struct{}) {
	if n.Kind == yaml.ScalarNode {
		if match := envRe.FindStringSubmatch(n.Value); match != nil {
			envVal, exists := os.LookupEnv(match[1])
			if !exists {
				missing[match[1]] = struct{}{}
			}
			n.Value = envVal
			n.Tag = "!!str"
		}
		return
	}
	for _, child := range n.Content {
		resolveEnvNodes(child, missing)
	}
}

func finalize(cfg *Config, baseDir string) {
	cfg.Dir = baseDir
	cfg.Storage.DataDir = ResolvePath(baseDir, cfg.Storage.DataDir)
	cfg.Storage.DBPath = ResolvePath(baseDir, cfg.Storage.DBPath)
	if cfg.Logging.File != "" {
		cfg.Logging.File = ResolvePath(baseDir, cfg.Logging.File)
	}
	if cfg.Agent.Provider.APIKey == "" {
		cfg.Agent.Provider.APIKey = FallbackKey(cfg.Agent.Provider.Type)
	}
}

// FallbackKey returns the conventional environment variable for a provider type.
func FallbackKey(providerType string) string {
	if name := FallbackKeyName(providerType); name != "" {
		return os.Getenv(name)
	}
	return ""
}

func FallbackKeyName(providerType string) string {
	switch providerType {
	case "openai":
		return "OPENAI_API_KEY"
	case "deepseek":
		return "DEEPSEEK_API_KEY"
	case "google", "gemini":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// ResolvePath returns p unchanged when absolute, otherwise joined onto baseDir.
func ResolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
