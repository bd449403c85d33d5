package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WatermillZerologAdapter routes watermill's internal logging through zerolog.
type WatermillZerologAdapter struct {
	logger zerolog.Logger
}

func NewWatermill(logger zerolog.Logger) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{logger: logger}
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(fields).Err(err).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	// map INFO to DEBUG because watermill is chatty
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(fields).Caller(1).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	l := w.logger.With().Fields(fields).Logger()
	return &WatermillZerologAdapter{logger: l}
}

var _ watermill.LoggerAdapter = &WatermillZerologAdapter{}

type correlationIDKeyType string

const correlationIDKey correlationIDKeyType = "correlation_id"

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(correlationIDKey).(string)
	if ok {
		return v
	}

	log.Ctx(ctx).Warn().Msg("correlation ID not found in context")

	// "gen_" marks correlation IDs we had to generate ourselves, which usually
	// means a caller forgot to thread the context through
	return "gen_" + shortuuid.New()
}
