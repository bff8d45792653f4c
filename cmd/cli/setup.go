package cli

import (
	"fmt"
	"os"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/log/sinks"
	"github.com/arnavsurve/nsecorp/pkg/security"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	// Ensure all driver implementations are registered
	_ "github.com/arnavsurve/nsecorp/pkg/downloader/drivers"
)

// session is what every command starts from: the resolved config and a
// logger routed through the redacting sinks.
type session struct {
	Config *config.Config
	Logger types.Logger
	Router *log.Router
	// LogFile is empty when file logging is off.
	LogFile string
}

func (s *session) Close() {
	s.Logger.Debug().Msg("Shutting down logger...")
	if err := s.Router.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during log shutdown: %v\n", err)
	}
}

// component returns a logger whose console lines are labelled name.
func (s *session) component(name string) types.Logger {
	return s.Logger.With().Str("component", name).Logger()
}

// startSession loads .env and the config file, then builds the logger the
// config asks for. Only an unreadable or invalid config is an error.
func startSession(configPath, driverOverride string, withFile bool, fields map[string]string) (*session, error) {
	envErr := godotenv.Load()

	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file %q: %w", configPath, err)
	}
	if driverOverride != "" {
		cfg.Driver = driverOverride
	}

	router := log.NewRouter()
	router.MinLevel = log.ParseLevel(cfg.Logging.Level)
	router.Redactor = security.NewRedactor(cfg.Secrets()...)
	if cfg.Logging.Console {
		router.AddSink(sinks.NewConsoleSink())
	}

	s := &session{Config: cfg, Router: router}
	if withFile && cfg.Logging.File != "" {
		fileSink, err := sinks.NewFileSink(sinks.FileSinkConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		})
		if err != nil {
			router.Close()
			return nil, fmt.Errorf("creating file log sink: %w", err)
		}
		router.AddSink(fileSink)
		s.LogFile = cfg.Logging.File
	}

	zctx := zerolog.New(router).With().Timestamp()
	for k, v := range fields {
		zctx = zctx.Str(k, v)
	}
	s.Logger = log.NewZerologAdapter(zctx.Logger())

	if envErr != nil {
		s.Logger.Debug().Err(envErr).Msg("No .env file found or error thrown while loading it. Relying on existing ENV")
	}
	if !found {
		s.Logger.Warn().Msgf("Config file %s not found. Proceeding with defaults.", configPath)
	} else {
		s.Logger.Info().Msgf("Successfully loaded config: %s", configPath)
	}
	for _, name := range cfg.Unresolved {
		s.Logger.Warn().Str("env", name).Msgf("Environment variable %s referenced in config is not set", name)
	}

	if err := cfg.Validate(); err != nil {
		s.Logger.Error().Err(err).Msg("Config validation failed")
		s.Close()
		return nil, fmt.Errorf("validating config %q: %w", configPath, err)
	}
	return s, nil
}
