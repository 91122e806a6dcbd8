package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger routes Watermill's logging into zerolog
type WatermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger wraps logger as a watermill.LoggerAdapter
func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger.With().Str("component", "watermill").Logger()}
}

func (w *WatermillLogger) event(e *zerolog.Event, msg string, fields watermill.LogFields) {
	e.Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(w.logger.Error().Err(err), msg, fields)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(w.logger.Info(), msg, fields)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(w.logger.Debug(), msg, fields)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(w.logger.Trace(), msg, fields)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: w.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
