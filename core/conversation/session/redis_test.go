package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

// setupMiniRedis starts an in-process redis and returns a store backed by it.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisStore(client)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	ctx := context.Background()

	s, err := store.GetOrCreate(ctx, 7, transport.PlatformGateway)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.Current != state.Initial {
		t.Fatalf("fresh redis session state = %s", s.Current)
	}

	if err := store.Force(ctx, 7, transport.PlatformGateway, state.DispatcherMenu, nil); err != nil {
		t.Fatal(err)
	}
	ok, err := store.TransitionTo(ctx, 7, transport.PlatformGateway, domain.RoleDispatcher,
		state.DispatcherAddShipmentPickupAddress, Context{state.KeyPickupAddress: "Main st 1"})
	if err != nil || !ok {
		t.Fatalf("transition: ok=%v err=%v", ok, err)
	}

	// Values survive the JSON round trip, numbers widened to float64.
	ok, err = store.TransitionTo(ctx, 7, transport.PlatformGateway, domain.RoleDispatcher,
		state.DispatcherAddShipmentDropoffAddress, Context{state.KeyFee: 12.5})
	if err != nil || !ok {
		t.Fatalf("transition: ok=%v err=%v", ok, err)
	}
	snap, err := store.Snapshot(ctx, 7, transport.PlatformGateway)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := snap.String(state.KeyPickupAddress); v != "Main st 1" {
		t.Fatalf("pickup address lost: %v", snap)
	}
	if fee, ok := snap.Float(state.KeyFee); !ok || fee != 12.5 {
		t.Fatalf("fee lost: %v", snap)
	}
}

func TestRedisStoreRejectsAbsentEdge(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	ctx := context.Background()

	if _, err := store.GetOrCreate(ctx, 8, transport.PlatformTelegram); err != nil {
		t.Fatal(err)
	}
	if err := store.Force(ctx, 8, transport.PlatformTelegram, state.CourierMenu, nil); err != nil {
		t.Fatal(err)
	}

	ok, err := store.TransitionTo(ctx, 8, transport.PlatformTelegram, domain.RoleCourier,
		state.CourierRegisterCollectName, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("menu -> register edge should not exist")
	}
	cur, _ := store.Current(ctx, 8, transport.PlatformTelegram)
	if cur != state.CourierMenu {
		t.Fatalf("rejected transition moved state to %s", cur)
	}
}

func TestRedisForceReplacesContext(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	ctx := context.Background()

	if _, err := store.GetOrCreate(ctx, 9, transport.PlatformTelegram); err != nil {
		t.Fatal(err)
	}
	if err := store.Force(ctx, 9, transport.PlatformTelegram, state.SenderMenu, Context{"b": 2}); err != nil {
		t.Fatal(err)
	}
	if err := store.Force(ctx, 9, transport.PlatformTelegram, state.SenderMenu, Context{"a": 1}); err != nil {
		t.Fatal(err)
	}
	snap, _ := store.Snapshot(ctx, 9, transport.PlatformTelegram)
	if len(snap) != 1 {
		t.Fatalf("forced context = %v, expected exactly one key", snap)
	}
	if _, found := snap["b"]; found {
		t.Fatal("Force merged instead of replacing")
	}
}
