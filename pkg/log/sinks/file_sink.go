package sinks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arnavsurve/nsecorp/pkg/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSinkConfig controls the rotating JSON log file.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink writes one JSON object per event through a lumberjack rotating writer.
type FileSink struct {
	w io.WriteCloser
}

func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory for %q: %w", cfg.Path, err)
	}
	return &FileSink{w: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

func (fs *FileSink) Write(event *log.LogEvent) error {
	logEntry := map[string]any{
		"level":   levelToString(event.Level),
		"time":    event.Timestamp,
		"message": event.Message,
	}
	for k, v := range event.Fields {
		logEntry[k] = v
	}

	data, err := json.Marshal(logEntry)
	if err != nil {
		return fmt.Errorf("marshaling log event for file sink: %w", err)
	}

	if _, err := fs.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing to file sink: %w", err)
	}

	return nil
}

func (fs *FileSink) Close() error {
	if fs.w != nil {
		return fs.w.Close()
	}
	return nil
}
