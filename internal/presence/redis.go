// Package presence implements the presence oracle: who is currently at a
// gathering point, plus a push stream of newly arrived users.
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultKeyPrefix = "presence:"
	arrivalsSuffix   = ":arrivals"
	defaultBuffer    = 64
)

// Redis keeps gathering point occupancy in a set per point and announces
// arrivals on a pub/sub channel per point:
//
//	presence:{point}           SET of user ids currently present
//	presence:{point}:arrivals  channel carrying the id of each new arrival
type Redis struct {
	client    *redis.Client
	keyPrefix string
	buffer    int
	group     singleflight.Group
}

// RedisOption customises a Redis oracle.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the "presence:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithBuffer sets the size of the arrival channel handed to subscribers.
func WithBuffer(size int) RedisOption {
	return func(r *Redis) {
		if size > 0 {
			r.buffer = size
		}
	}
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, keyPrefix: defaultKeyPrefix, buffer: defaultBuffer}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) membersKey(point string) string {
	return r.keyPrefix + point
}

func (r *Redis) arrivalsChannel(point string) string {
	return r.keyPrefix + point + arrivalsSuffix
}

// IsPresent reports whether userID is in the occupancy set of point.
// Concurrent lookups for the same pair share one round trip.
func (r *Redis) IsPresent(ctx context.Context, userID, point string) (bool, error) {
	key := r.membersKey(point)
	v, err, _ := r.group.Do(key+"\x00"+userID, func() (any, error) {
		return r.client.SIsMember(ctx, key, userID).Result()
	})
	if err != nil {
		return false, fmt.Errorf("presence: lookup %s in %s: %w", userID, point, err)
	}
	return v.(bool), nil
}

// MarkPresent adds userID to the occupancy set and publishes the arrival when
// the user was not already present.
func (r *Redis) MarkPresent(ctx context.Context, userID, point string) error {
	added, err := r.client.SAdd(ctx, r.membersKey(point), userID).Result()
	if err != nil {
		return fmt.Errorf("presence: mark %s present in %s: %w", userID, point, err)
	}
	if added == 0 {
		return nil
	}
	if err := r.client.Publish(ctx, r.arrivalsChannel(point), userID).Err(); err != nil {
		return fmt.Errorf("presence: publish arrival of %s in %s: %w", userID, point, err)
	}
	return nil
}

// MarkAbsent removes userID from the occupancy set.
func (r *Redis) MarkAbsent(ctx context.Context, userID, point string) error {
	if err := r.client.SRem(ctx, r.membersKey(point), userID).Err(); err != nil {
		return fmt.Errorf("presence: mark %s absent in %s: %w", userID, point, err)
	}
	return nil
}

// Arrivals subscribes to the arrival channel of point. The returned channel is
// closed when ctx ends or the subscription drops.
func (r *Redis) Arrivals(ctx context.Context, point string) (<-chan string, error) {
	sub := r.client.Subscribe(ctx, r.arrivalsChannel(point))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("presence: subscribe to %s: %w", point, err)
	}

	out := make(chan string, r.buffer)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
