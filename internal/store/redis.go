package store

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisLink carries the subscribe-for-change-events primitive on Redis
// pub/sub. One channel per session message feed and one per customer session
// feed; see MessageChannel / SessionChannel.
type RedisLink struct {
	client *redis.Client
}

func NewRedisLink(addr, password string) *RedisLink {
	return &RedisLink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
	}
}

func NewRedisLinkWithClient(client *redis.Client) *RedisLink {
	return &RedisLink{client: client}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (l *RedisLink) Subscribe(ctx context.Context, topic Topic, filter string, onEvent func(Event)) (Subscription, error) {
	var channel string
	switch topic {
	case TopicMessages:
		channel = MessageChannel(filter)
	case TopicSession:
		channel = SessionChannel(filter)
	default:
		return nil, fmt.Errorf("redis link: unknown topic %q", topic)
	}

	pubsub := l.client.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip so a dead broker fails here,
	// not silently on the first missed event.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis link: subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				onEvent(Event{
					Topic:   topic,
					Payload: []byte(msg.Payload),
				})
			}
		}
	}()

	return sub, nil
}

func (l *RedisLink) Publish(ctx context.Context, channel string, payload []byte) {
	if err := l.client.Publish(ctx, channel, string(payload)).Err(); err != nil {
		log.Printf("redis link: publish %s: %v", channel, err)
	}
}

func (l *RedisLink) ProbeHealth(ctx context.Context) (Health, error) {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return Health{Alive: false}, nil
	}
	return Health{Alive: true}, nil
}

// ForceReconnect verifies the broker is reachable again. The pool redials on
// its own; subscribers re-establish their feeds right after this call, which
// is what actually replaces any dead pub/sub connections.
func (l *RedisLink) ForceReconnect(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis link: reconnect ping: %w", err)
	}
	return nil
}
