package sinks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/fatih/color"
)

var levelColorMap = map[types.Level]*color.Color{
	types.DebugLevel: color.New(color.FgCyan),
	types.InfoLevel:  color.New(color.FgGreen),
	types.WarnLevel:  color.New(color.FgYellow),
	types.ErrorLevel: color.New(color.FgRed),
	types.FatalLevel: color.New(color.FgRed, color.Bold),
}

type ConsoleSink struct {
	out io.Writer
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: color.Output}
}

// NewConsoleSinkTo writes to w instead of the terminal. Colors follow color.NoColor.
func NewConsoleSinkTo(w io.Writer) *ConsoleSink {
	return &ConsoleSink{out: w}
}

func (c *ConsoleSink) Write(event *log.LogEvent) error {
	component := getStringField(event.Fields, "component")
	source := getStringField(event.Fields, "source")
	agentLine := getStringField(event.Fields, "agent_line")
	errorMsg := getStringField(event.Fields, "error")
	levelStr := strings.ToUpper(levelToString(event.Level))
	timestampStr := event.Timestamp.Format(time.RFC3339)

	levelFmt := color.New(color.FgWhite).SprintFunc()
	if lc, ok := levelColorMap[event.Level]; ok {
		levelFmt = lc.SprintFunc()
	}
	timestampFmt := color.New(color.FgWhite).SprintFunc()

	label := component
	if label == "" {
		label = "nsecorp"
	}

	commonPrefix := fmt.Sprintf("[%s %s] %s: ",
		levelFmt(levelStr),
		timestampFmt(timestampStr),
		color.CyanString(label),
	)

	var output string
	switch {
	case agentLine != "" && source != "":
		output = fmt.Sprintf("%s[agent/%s]: %s", commonPrefix, color.BlueString(source), agentLine)
	case event.Message != "" && errorMsg != "":
		output = fmt.Sprintf("%s%s: %s", commonPrefix, event.Message, errorMsg)
	case errorMsg != "":
		output = fmt.Sprintf("%s%s", commonPrefix, errorMsg)
	case event.Message != "":
		output = fmt.Sprintf("%s%s", commonPrefix, event.Message)
	default:
		fieldsStr, _ := json.MarshalIndent(event.Fields, "", "  ")
		output = fmt.Sprintf("%s%s", commonPrefix, string(fieldsStr))
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintln(out, output)
	return err
}

// Helper to safely get string field from LogEvent.Fields
func getStringField(fields map[string]any, key string) string {
	if val, ok := fields[key]; ok {
		if strVal, isStr := val.(string); isStr {
			return strVal
		}
	}
	return ""
}

func levelToString(l types.Level) string {
	switch l {
	case types.DebugLevel:
		return "debug"
	case types.InfoLevel:
		return "info"
	case types.WarnLevel:
		return "warn"
	case types.ErrorLevel:
		return "error"
	case types.FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

func (c *ConsoleSink) Close() error {
	return nil
}
