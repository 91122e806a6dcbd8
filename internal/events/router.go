package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"
)

// NewRouter builds a Watermill router for a pipeline stage. Handler panics become errors,
// and errors are retried in-process a few times before the message is nacked back to the
// stream for redelivery.
func NewRouter(logger zerolog.Logger) (*message.Router, error) {
	wmLogger := NewWatermillLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, wmLogger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			Multiplier:      2,
			MaxInterval:     5 * time.Second,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)
	return router, nil
}
