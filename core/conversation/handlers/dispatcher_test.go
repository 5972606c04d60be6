package handlers

import (
	"strings"
	"testing"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func TestDispatcherAddShipmentCommit(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.world.seedStation(7, 0, id)
	h.park(t, id, state.DispatcherMenu)

	res := h.say(t, "d1", "new shipment")
	if res.NewState != state.DispatcherAddShipmentPickupAddress {
		t.Fatalf("state = %s, want pickup step", res.NewState)
	}

	h.say(t, "d1", "Herzl 1, Haifa")
	h.say(t, "d1", "Dizengoff 2, Tel Aviv")
	h.say(t, "d1", "+972501234567")
	res = h.say(t, "d1", "25.50")
	if res.NewState != state.DispatcherAddShipmentConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}

	res = h.say(t, "d1", "yes")
	if res.NewState != state.DispatcherMenu {
		t.Fatalf("state = %s, want menu after commit", res.NewState)
	}
	if len(h.world.deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(h.world.deliveries))
	}
	del := h.world.deliveries[0]
	if del.StationID != 7 || del.Fee != 25.50 {
		t.Fatalf("unexpected delivery: %+v", del)
	}
}

func TestDispatcherAddShipmentCancelPurges(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.world.seedStation(7, 0, id)
	h.park(t, id, state.DispatcherMenu)

	h.say(t, "d1", "new shipment")
	h.say(t, "d1", "Herzl 1, Haifa")
	h.say(t, "d1", "Dizengoff 2, Tel Aviv")
	h.say(t, "d1", "+972501234567")
	h.say(t, "d1", "25")

	res := h.say(t, "d1", "cancel")
	if res.NewState != state.DispatcherMenu {
		t.Fatalf("state = %s, want menu after cancel", res.NewState)
	}
	if len(h.world.deliveries) != 0 {
		t.Fatalf("cancel must not create a shipment, got %d", len(h.world.deliveries))
	}
	snap := h.snapshot(t, id)
	for _, key := range []string{state.KeyPickupAddress, state.KeyDropoffAddress, state.KeyFee} {
		if _, ok := snap[key]; ok {
			t.Fatalf("key %s survived the cancel purge", key)
		}
	}
}

func TestDispatcherManualChargeFlow(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.world.seedStation(7, 0, id)
	h.world.stationCouriers[7] = []domain.Account{
		{ID: 31, Name: "Rami", Phone: "+300"},
		{ID: 32, Name: "Noa", Phone: "+301"},
	}
	h.park(t, id, state.DispatcherMenu)

	res := h.say(t, "d1", "manual charge")
	if res.NewState != state.DispatcherManualChargeSelectCourier {
		t.Fatalf("state = %s, want courier selection", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "Noa") {
		t.Fatalf("courier list missing entries: %q", res.Response.Text)
	}

	res = h.say(t, "d1", "2")
	if res.NewState != state.DispatcherManualChargeAmount {
		t.Fatalf("state = %s, want amount step", res.NewState)
	}

	h.say(t, "d1", "40")
	res = h.say(t, "d1", "late cancellation")
	if res.NewState != state.DispatcherManualChargeConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "Noa") {
		t.Fatalf("summary should name the courier: %q", res.Response.Text)
	}

	res = h.say(t, "d1", "yes")
	if res.NewState != state.DispatcherMenu {
		t.Fatalf("state = %s, want menu after commit", res.NewState)
	}
	if len(h.world.charges) != 1 {
		t.Fatalf("charges = %d, want 1", len(h.world.charges))
	}
	ch := h.world.charges[0]
	if ch.CourierID != 32 || ch.Amount != 40 || ch.Reason != "late cancellation" || ch.CreatedBy != id {
		t.Fatalf("unexpected charge: %+v", ch)
	}
	if _, ok := h.snapshot(t, id)[state.KeyChargeCourierID]; ok {
		t.Fatal("charge keys should be purged after commit")
	}
}

func TestDispatcherManualChargeStaleSelection(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.world.seedStation(7, 0, id)
	h.world.stationCouriers[7] = []domain.Account{{ID: 31, Name: "Rami", Phone: "+300"}}
	h.park(t, id, state.DispatcherMenu)
	h.say(t, "d1", "manual charge")

	res := h.say(t, "d1", "9")
	if res.NewState != state.DispatcherManualChargeSelectCourier {
		t.Fatalf("stale pick moved state to %s", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "Rami") {
		t.Fatalf("expected a fresh list, got %q", res.Response.Text)
	}
}

func TestDispatcherStationGoneDowngradesAtFieldStep(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.world.seedStation(7, 0, id)
	h.park(t, id, state.DispatcherAddShipmentPickupAddress)
	h.world.dropStation(id)

	res := h.say(t, "d1", "Haifa, Herzl 12")
	if res.NewState != state.SenderMenu {
		t.Fatalf("state = %s, want sender menu after downgrade", res.NewState)
	}
	if got := roleOf(t, h.world, "d1"); got != domain.RoleSender {
		t.Fatalf("role = %s, want sender", got)
	}
	if len(h.snapshot(t, id)) != 0 {
		t.Fatal("context should be wiped on downgrade")
	}
}

func TestDispatcherStationGoneDowngradesMidFlow(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "d1", domain.RoleDispatcher)
	h.park(t, id, state.DispatcherMenu)

	res := h.say(t, "d1", "new shipment")
	if res.NewState != state.SenderMenu {
		t.Fatalf("state = %s, want sender menu after downgrade", res.NewState)
	}
	if got := roleOf(t, h.world, "d1"); got != domain.RoleSender {
		t.Fatalf("role = %s, want sender", got)
	}
	if len(h.snapshot(t, id)) != 0 {
		t.Fatal("context should be wiped on downgrade")
	}
}
