package app

import (
	"context"

	"call-recap-service/internal/service/session"
)

// dispatch forwards controller notifications to websocket clients and,
// except for level updates, to the notification topic.
func (a *Application) dispatch(ctx context.Context) {
	events := a.Controller.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			a.Hub.Broadcast(n)
			if n.Kind == session.NotifyLevel {
				continue
			}
			if err := a.Publisher.PublishNotification(ctx, n.SessionID, n); err != nil {
				a.Logger.Warn().Err(err).Str("kind", string(n.Kind)).Msg("Failed to publish notification")
			}
		}
	}
}
