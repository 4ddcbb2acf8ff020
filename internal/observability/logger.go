package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the JSON production logger used by the API server.
// LOG_LEVEL picks the level (default INFO) and LOG_FILE, when set, replaces stderr.
func NewLogger() (*zap.Logger, error) {
	return newLogger(parseLogLevel(os.Getenv("LOG_LEVEL"), zap.InfoLevel))
}

// NewCLILogger is NewLogger for interactive commands: it defaults to WARN so
// routine events don't interleave with the rendered report.
func NewCLILogger() (*zap.Logger, error) {
	return newLogger(parseLogLevel(os.Getenv("LOG_LEVEL"), zap.WarnLevel))
}

// NewTUILogger is NewCLILogger for the full-screen dashboard. Output to the
// terminal would draw over the UI, so without LOG_FILE it discards everything.
func NewTUILogger() (*zap.Logger, error) {
	if strings.TrimSpace(os.Getenv("LOG_FILE")) == "" {
		return zap.NewNop(), nil
	}
	return NewCLILogger()
}

func newLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = level
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		config.OutputPaths = []string{path}
		config.ErrorOutputPaths = []string{path}
	}
	return config.Build()
}

func parseLogLevel(s string, fallback zapcore.Level) zap.AtomicLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "INFO":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "WARN":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(fallback)
	}
}
