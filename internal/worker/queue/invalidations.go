package queue

import (
	"context"

	"github.com/redis/go-redis/v9"

	"docforge/internal/pkg/logger"
)

// InvalidationListener subscribes to template invalidation events: the
// authoring side publishes a template version ID whenever a new version
// supersedes it, and the worker drops the stale asset from its cache.
type InvalidationListener struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

func NewInvalidationListener(rdb *redis.Client, channel string, log *logger.Logger) *InvalidationListener {
	if log == nil {
		log = logger.NewDefault()
	}
	return &InvalidationListener{
		rdb:     rdb,
		channel: channel,
		log:     log.WithComponent("invalidations"),
	}
}

// Run blocks consuming invalidation events until the context is canceled.
func (l *InvalidationListener) Run(ctx context.Context, invalidate func(key string) bool) error {
	sub := l.rdb.Subscribe(ctx, l.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if m.Payload == "" {
				continue
			}
			if invalidate(m.Payload) {
				l.log.Info("template asset invalidated", "version_id", m.Payload)
			}
		}
	}
}
