package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	// notifyReconnectDelay is how long to wait before re-dialing after
	// the notify connection drops.
	notifyReconnectDelay = 10 * time.Second
)

// ChangeEvent is one folder-change push from the server.
type ChangeEvent struct {
	Account   string
	ServerURL string
}

// Notifier subscribes to the server's change-notify websocket feed and
// invokes the handler for every folder-change event. The handler is
// advisory: it typically triggers a non-forced directory refresh, which
// the entity-tag check makes cheap when nothing actually changed.
type Notifier struct {
	url     string
	handler func(ChangeEvent)
	logger  *slog.Logger
}

// NewNotifier creates a notifier for the given websocket URL.
func NewNotifier(url string, logger *slog.Logger, handler func(ChangeEvent)) *Notifier {
	return &Notifier{
		url:     url,
		handler: handler,
		logger:  logger,
	}
}

// Run connects and processes events until the context is cancelled.
// Connection drops are retried with a fixed delay.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if err := n.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			n.logger.Warn("notify connection lost",
				slog.String("url", n.url),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(notifyReconnectDelay):
		}
	}
}

func (n *Notifier) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, n.url, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return fmt.Errorf("dialing notify websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	n.logger.Info("notify feed connected", slog.String("url", n.url))

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading notify event: %w", err)
		}

		if typ != websocket.MessageText {
			continue
		}

		ev := ChangeEvent{
			Account:   gjson.GetBytes(data, "account").Str,
			ServerURL: gjson.GetBytes(data, "path").Str,
		}

		if ev.ServerURL == "" {
			n.logger.Debug("notify event without path, ignoring")
			continue
		}

		n.handler(ev)
	}
}
