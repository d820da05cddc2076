package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventDedup remembers processed event ids per consumer name.
type EventDedup struct {
	Client *redis.Client
	Name   string
}

func (d *EventDedup) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.Name, eventID)
}

func (d *EventDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.Client, d.key(eventID))
}

func (d *EventDedup) Mark(ctx context.Context, eventID string) error {
	return d.Client.Set(ctx, d.key(eventID), "1", TTLDedup).Err()
}
