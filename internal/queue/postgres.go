package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"server/internal/infra"
)

const (
	listenerMinReconnect = 2 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PGNotifier publishes job ids on a Postgres notification channel. Delivery
// is fire-and-forget: a worker that is not subscribed at publish time relies
// on the sweep.
type PGNotifier struct {
	pool    *pgxpool.Pool
	channel string
}

// NewPGNotifier creates a notifier publishing on the named channel.
func NewPGNotifier(pool *pgxpool.Pool, channel string) *PGNotifier {
	return &PGNotifier{pool: pool, channel: channel}
}

// Notify emits the job id on the channel.
func (n *PGNotifier) Notify(ctx context.Context, jobID string) error {
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, n.channel, jobID); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// PGSubscriber holds a long-lived LISTEN connection. pq.Listener reconnects
// on its own; after a reconnect it delivers a nil notification, which Receive
// skips since the sweep re-derives anything missed during the outage.
type PGSubscriber struct {
	listener *pq.Listener
	logger   infra.Logger
}

// NewPGSubscriber connects and subscribes to the named channel.
func NewPGSubscriber(databaseURL, channel string, logger infra.Logger) (*PGSubscriber, error) {
	listener := pq.NewListener(databaseURL, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn().Err(err).Int("event", int(ev)).Msg("queue: listener event")
			}
		})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %q: %w", channel, err)
	}
	return &PGSubscriber{listener: listener, logger: logger}, nil
}

// Receive blocks until a job id arrives or ctx is cancelled. The connection
// is pinged periodically so a silently dead link triggers a reconnect.
func (s *PGSubscriber) Receive(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case n := <-s.listener.Notify:
			if n == nil {
				// Reconnect marker.
				continue
			}
			return n.Extra, nil
		case <-time.After(listenerPingInterval):
			if err := s.listener.Ping(); err != nil {
				s.logger.Warn().Err(err).Msg("queue: listener ping failed")
			}
		}
	}
}

// Close tears down the LISTEN connection.
func (s *PGSubscriber) Close() error {
	return s.listener.Close()
}

var (
	_ Notifier   = (*PGNotifier)(nil)
	_ Subscriber = (*PGSubscriber)(nil)
)
