package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// osStdout is the console sink used when Setup gets no file. Swapped in tests.
var osStdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with optional OTel and Graylog output.
type SlogManager struct {
	logger    *slog.Logger
	sessionID string

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// Option configures optional log outputs in Setup.
type Option func(*setupOptions)

type setupOptions struct {
	graylog io.Writer
}

// WithGraylog adds a JSON handler writing to a GELF writer.
func WithGraylog(w io.Writer) Option {
	return func(o *setupOptions) {
		o.graylog = w
	}
}

// NewSlogManager creates a new slog-based logging manager with a fresh session ID.
func NewSlogManager() *SlogManager {
	return &SlogManager{sessionID: uuid.NewString()}
}

// SessionID identifies this process in every log record.
func (m *SlogManager) SessionID() string {
	return m.sessionID
}

// parseLevel accepts the slog level names in any case, plus "warning".
// Anything else logs at info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Setup initializes the logging system. Records go to file when one is
// given, otherwise to stdout. If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	lvl := parseLevel(level)
	m.logProvider = provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	console := file
	if console == nil {
		console = osStdout
	}
	handler := NewContextHandler(NewMultiHandler(
		slog.NewTextHandler(console, handlerOpts),
		graylogSink(o.graylog, handlerOpts),
		otelSink(provider),
	), m.sessionAttrs)

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level)
}

func (m *SlogManager) sessionAttrs() []slog.Attr {
	return []slog.Attr{slog.String("session", m.sessionID)}
}

// graylogSink writes JSON records to a GELF writer; nil without one.
func graylogSink(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if w == nil {
		return nil
	}
	return slog.NewJSONHandler(w, opts)
}

// otelSink bridges records into the OTel log pipeline; nil when disabled.
func otelSink(provider *sdklog.LoggerProvider) slog.Handler {
	if provider == nil {
		return nil
	}
	return otelslog.NewHandler("tovian", otelslog.WithLoggerProvider(provider))
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
