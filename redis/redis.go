package redis

import (
	"context"
	"fmt"

	"github.com/GetStream/chatsync/chat"
	"github.com/redis/go-redis/v9"
)

// Redis provides push subscriptions over Redis Pub/Sub.
type Redis struct {
	cli *redis.Client
}

var _ chat.Feed = (*Redis)(nil)

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// Subscribe subscribes to channel and waits for the server to confirm the
// subscription, so no payload published after Subscribe returns is missed.
func (r *Redis) Subscribe(ctx context.Context, channel string) (chat.Subscription, error) {
	ps := r.cli.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return &subscription{ps: ps, ch: ps.Channel()}, nil
}

// Publish publishes a raw event payload on channel.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.cli.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.cli.Close()
}

type subscription struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

// Next reads from the channel returned by PubSub.Channel rather than calling
// ReceiveMessage, since a blocked socket read does not observe ctx.
func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("receive: %w", ctx.Err())
	case msg, ok := <-s.ch:
		if !ok {
			return nil, fmt.Errorf("receive: %w", redis.ErrClosed)
		}
		return []byte(msg.Payload), nil
	}
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
