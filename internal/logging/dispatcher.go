package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// badKey names a value that arrived without a key, as log/slog does.
const badKey = "!BADKEY"

// DispatcherLogger writes buffer worker events through zerolog. Every line
// carries component=dispatcher; an "error" value is written with Err.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	l.write(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	l.write(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	l.write(l.logger.Error(), msg, keysAndValues)
}

func (l *DispatcherLogger) write(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	fields := toFields(keysAndValues)
	if err, ok := fields[zerolog.ErrorFieldName].(error); ok {
		e = e.Err(err)
		delete(fields, zerolog.ErrorFieldName)
	}
	e.Fields(fields).Msg(msg)
}

// toFields pairs keys with values. Non-string keys are formatted and a
// trailing value without a key is kept under !BADKEY.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 == len(keysAndValues) {
			fields[badKey] = keysAndValues[i]
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
