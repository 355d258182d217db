package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapped out in tests
var osStdout io.Writer = os.Stdout

// InstrumentationName identifies log records bridged to OTel.
const InstrumentationName = "scenariosim"

// SlogManager owns the process logger: a text sink (log file or stdout),
// an optional OTel bridge, and a provider of live attributes.
type SlogManager struct {
	logger      *slog.Logger
	level       slog.Level
	logProvider *sdklog.LoggerProvider
	context     ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts slog level names in any case. Anything unparsable is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// utcTime renders record times as RFC3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// SetContextProvider registers attributes added to every record, such as the
// number of running simulations. Takes effect on the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup builds the logger. Records go to file when one is given, to stdout
// otherwise, and additionally to OTel when provider is non-nil.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.level = parseLevel(level)
	m.logProvider = provider

	sink := file
	if sink == nil {
		sink = osStdout
	}
	text := slog.NewTextHandler(sink, &slog.HandlerOptions{Level: m.level, ReplaceAttr: utcTime})

	var bridge slog.Handler
	if provider != nil {
		bridge = otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(provider))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(text, bridge), m.context))
	m.logger.Info("Logging initialized", "level", m.level.String())
}

func (m *SlogManager) Level() slog.Level {
	return m.level
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces pending OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
