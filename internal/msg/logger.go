package msg

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	EnvLogLevel = "SKIA_BUILD_LOG"
	EnvLogJSON  = "SKIA_BUILD_LOG_JSON"
)

// NewLogger creates the diagnostic logger handed to every pipeline stage.
// An empty level means "warn".
func NewLogger(name, level string, jsonFormat bool, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	if level == "" {
		level = "warn"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// LoggerFromEnv reads the log settings from the process environment.
func LoggerFromEnv(name string) hclog.Logger {
	return NewLogger(name, os.Getenv(EnvLogLevel), os.Getenv(EnvLogJSON) == "1", nil)
}
