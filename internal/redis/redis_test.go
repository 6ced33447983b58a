package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"todaride/internal/domain"
	"todaride/internal/events"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TODA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TODA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockStore_OnlyOneHolder(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	store := NewLockStore(client)
	name := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = client.Del(ctx, "lock:"+name).Err() })

	ok, err := store.TryAcquire(ctx, name, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
	}

	ok, err = store.TryAcquire(ctx, name, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail while held")
	}

	if err := client.Del(ctx, "lock:"+name).Err(); err != nil {
		t.Fatalf("expire lease: %v", err)
	}
	ok, _ = store.TryAcquire(ctx, name, time.Minute)
	if !ok {
		t.Error("expected acquire after the lease lapsed to succeed")
	}
}

func TestLocationIndex_MirrorsPresenceEvents(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	index := NewLocationIndex(client)
	tenant := "tenant-" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, locationKey(tenant)) })

	lat, lng := 14.5995, 120.9842
	online := &domain.DriverPresence{DriverID: "d1", TenantID: tenant, IsOnline: true, Lat: &lat, Lng: &lng}
	if err := index.Publish(ctx, events.PresenceUpdated(online, time.Now())); err != nil {
		t.Fatalf("publish online: %v", err)
	}

	found, err := index.FindNearbyDrivers(ctx, tenant, lat, lng, 1)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(found) != 1 || found[0].DriverID != "d1" {
		t.Fatalf("expected d1 indexed, got %+v", found)
	}

	online.IsOnline = false
	if err := index.Publish(ctx, events.PresenceUpdated(online, time.Now())); err != nil {
		t.Fatalf("publish offline: %v", err)
	}
	found, _ = index.FindNearbyDrivers(ctx, tenant, lat, lng, 1)
	if len(found) != 0 {
		t.Errorf("expected offline driver removed, got %+v", found)
	}
}

func TestEventPublisher_PublishesOnTenantChannel(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	pub := NewEventPublisher(client, "events")
	tenant := "tenant-" + uuid.NewString()

	sub := client.Subscribe(ctx, pub.Channel(tenant))
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := domain.Event{Type: domain.EventRideUpdated, TenantID: tenant, EntityID: "r1"}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var decoded domain.Event
	if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EntityID != "r1" || decoded.Type != domain.EventRideUpdated {
		t.Errorf("unexpected event %+v", decoded)
	}
}
