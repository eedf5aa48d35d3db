package metricspush

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("metricspush",
	fx.Provide(NewPusher),
	fx.Provide(NewWorker),
)

// Background pushes on an interval for long-running processes. One-shot
// binaries call Worker.PushOnce themselves.
var Background = fx.Invoke(StartWorker)

func StartWorker(lc fx.Lifecycle, w *Worker, pusher Pusher) {
	if !w.Enabled() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			if closer, ok := pusher.(interface{ Close() error }); ok {
				return closer.Close()
			}
			return nil
		},
	})
}
