package events

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/dinehall/tableside/internal/config"
)

// Module provides the event publisher, falling back to a no-op when no
// broker is configured.
var Module = fx.Provide(newPublisher)

type publisherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

func newPublisher(p publisherParams) (Publisher, error) {
	if p.Config.AMQPURL == "" {
		return NopPublisher{}, nil
	}

	publisher, err := Dial(p.Config.AMQPURL, p.Logger)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			publisher.Close()
			return nil
		},
	})
	return publisher, nil
}
