// Package realtimesvc provides the Redis-backed realtime Bus used in
// multi-process deployments.
package realtimesvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/realtime"
)

// RedisBus implements realtime.Bus on Redis pub/sub channels; events are
// JSON-encoded on the wire.
type RedisBus struct {
	client *redis.Client
	logger core.Logger
}

var _ realtime.Bus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client, logger core.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// NewClient builds a redis client from config.
func NewClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// Publish sends the event to all subscribers of key.
func (b *RedisBus) Publish(ctx context.Context, key string, evt realtime.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, key, data).Err()
}

// Subscribe opens a pub/sub subscription on key. Messages that fail to decode
// are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, key string) (<-chan realtime.Event, func() error, error) {
	ctx, cancel := context.WithCancel(ctx)

	ps := b.client.Subscribe(ctx, key)
	// make sure the subscription is live before returning
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, nil, err
	}

	ch := make(chan realtime.Event, 16)
	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			cancel()
			err = ps.Close()
		})
		return err
	}

	go func() {
		defer close(ch)
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			var evt realtime.Event
			if err = json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Error("realtime: decoding event payload", err)
				continue
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, stop, nil
}
