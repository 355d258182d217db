package logging

import (
	"io"

	"github.com/rs/zerolog"
)

// HubLogger adapts zerolog.Logger to the broadcast.Logger interface.
type HubLogger struct {
	logger zerolog.Logger
}

// NewHubLogger creates a new HubLogger wrapping a zerolog.Logger.
func NewHubLogger(logger zerolog.Logger) *HubLogger {
	return &HubLogger{logger: logger}
}

func (l *HubLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(toFields(keysAndValues)).Msg(msg)
}

func (l *HubLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(toFields(keysAndValues)).Msg(msg)
}

func (l *HubLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(toFields(keysAndValues)).Msg(msg)
}

// toFields converts key-value pairs to a map for zerolog. A trailing key
// without a value and non-string keys are dropped.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

// NewZerolog builds the zerolog logger used by infrastructure managers
// (database, influx), writing JSON to w at the given level.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "infra").Logger()
}
