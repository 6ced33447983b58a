package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"todaride/internal/domain"
)

// EventPublisher fans events out over Redis Pub/Sub on one channel per
// tenant, where the realtime gateway subscribes.
type EventPublisher struct {
	client *redis.Client
	prefix string
}

// NewEventPublisher creates a publisher using channels "<prefix>:<tenant>".
func NewEventPublisher(client *redis.Client, prefix string) *EventPublisher {
	return &EventPublisher{client: client, prefix: prefix}
}

// Channel returns the channel name for a tenant.
func (p *EventPublisher) Channel(tenantID string) string {
	return fmt.Sprintf("%s:%s", p.prefix, tenantID)
}

// Publish encodes the event as JSON and publishes it.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.Channel(event.TenantID), data).Err()
}
