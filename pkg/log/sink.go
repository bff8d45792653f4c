package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/security"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/rs/zerolog"
)

// LogEvent represents a log event that will be written to sinks
type LogEvent struct {
	Level     types.Level
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}

// Sink defines the interface for log output destinations
type Sink interface {
	Write(event *LogEvent) error
	io.Closer
}

// Router decodes zerolog JSON lines and routes them to multiple sinks
type Router struct {
	sinks    []Sink
	Redactor *security.Redactor
	MinLevel types.Level
}

func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks, MinLevel: types.DebugLevel}
}

func (r *Router) Write(p []byte) (n int, err error) {
	var zerologOutput map[string]any
	if err := json.Unmarshal(p, &zerologOutput); err != nil {
		fmt.Fprintf(os.Stderr, "Router: Error unmarshaling log line: %v, data: %s\n", err, string(p))
		return len(p), nil
	}

	evt := &LogEvent{
		Level:  types.InfoLevel,
		Fields: make(map[string]any),
	}

	if lvlStr, ok := zerologOutput[zerolog.LevelFieldName].(string); ok {
		zlLevel, err := zerolog.ParseLevel(lvlStr)
		if err == nil {
			evt.Level = ConvertZerologLevel(zlLevel)
		}
	}
	if evt.Level < r.MinLevel {
		return len(p), nil
	}
	if msg, ok := zerologOutput[zerolog.MessageFieldName].(string); ok {
		evt.Message = msg
	}
	if tsStr, ok := zerologOutput[zerolog.TimestampFieldName].(string); ok {
		evt.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	} else {
		evt.Timestamp = time.Now()
	}

	for k, v := range zerologOutput {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName:
			continue
		}
		evt.Fields[k] = v
	}

	if r.Redactor != nil {
		evt.Message = r.Redactor.Redact(evt.Message)
		for k, v := range evt.Fields {
			evt.Fields[k] = r.redactValue(v)
		}
	}

	for _, sink := range r.sinks {
		if err := sink.Write(evt); err != nil {
			fmt.Fprintf(os.Stderr, "Router: Error writing to sink: %v\n", err)
		}
	}

	return len(p), nil
}

func (r *Router) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redactor.Redact(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = r.redactValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = r.redactValue(inner)
		}
		return val
	default:
		return v
	}
}

func ConvertZerologLevel(zl zerolog.Level) types.Level {
	switch zl {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return types.DebugLevel
	case zerolog.InfoLevel:
		return types.InfoLevel
	case zerolog.WarnLevel:
		return types.WarnLevel
	case zerolog.ErrorLevel:
		return types.ErrorLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return types.FatalLevel
	default:
		return types.InfoLevel
	}
}

// ParseLevel maps a config level name onto a sink level. Unknown names mean info.
func ParseLevel(name string) types.Level {
	zl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return types.InfoLevel
	}
	return ConvertZerologLevel(zl)
}

func (r *Router) AddSink(sink Sink) {
	r.sinks = append(r.sinks, sink)
}

func (r *Router) Close() error {
	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
