package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log instead of an
// external channel. Used in development and as the default provider.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, recipient, template string, params map[string]string) error {
	n.logger.Info().
		Str("recipient", recipient).
		Str("template", template).
		Str("message", Render(template, params)).
		Msg("notification sent")
	return nil
}
