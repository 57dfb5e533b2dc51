package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Liveness marks active session codes in Redis so operators (and, later, a
// cross-instance router) can see which codes are live. Best-effort: errors
// are ignored because the in-memory registry stays authoritative.
type Liveness struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLiveness(client *redis.Client, ttl time.Duration) *Liveness {
	return &Liveness{client: client, ttl: ttl}
}

func (l *Liveness) MarkActive(code string) {
	_ = l.client.Set(context.Background(), l.key(code), "1", l.ttl).Err()
}

func (l *Liveness) Clear(code string) {
	_ = l.client.Del(context.Background(), l.key(code)).Err()
}

func (l *Liveness) key(code string) string {
	return "session:live:" + code
}
