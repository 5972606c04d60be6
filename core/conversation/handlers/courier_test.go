package handlers

import (
	"testing"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func TestCourierRegistrationChain(t *testing.T) {
	h := newHarness(t)

	res := h.say(t, "rider", "courier")
	if res.NewState != state.CourierRegisterCollectName {
		t.Fatalf("state = %s, want name step", res.NewState)
	}

	h.say(t, "rider", "Dana Levi")
	h.say(t, "rider", "+972501234567")
	res = h.say(t, "rider", "Haifa")
	if res.NewState != state.CourierRegisterCollectDocument {
		t.Fatalf("state = %s, want document step", res.NewState)
	}

	// The document step needs media; plain text re-prompts in place.
	res = h.say(t, "rider", "here you go")
	if res.NewState != state.CourierRegisterCollectDocument {
		t.Fatalf("text at media step moved state to %s", res.NewState)
	}

	res = h.sendMedia(t, "rider", "file/abc123")
	if res.NewState != state.CourierRegisterCollectVehicle {
		t.Fatalf("state = %s, want vehicle step", res.NewState)
	}

	res = h.say(t, "rider", "scooter")
	if res.NewState != state.CourierRegisterPendingApproval {
		t.Fatalf("state = %s, want pending approval", res.NewState)
	}

	if len(h.world.profiles) != 1 {
		t.Fatalf("profiles submitted = %d, want 1", len(h.world.profiles))
	}
	p := h.world.profiles[0]
	if p.FullName != "Dana Levi" || p.City != "Haifa" || p.DocumentRef != "file/abc123" || p.Vehicle != "scooter" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	// Anything sent while pending stays pending.
	res = h.say(t, "rider", "any news?")
	if res.NewState != state.CourierRegisterPendingApproval {
		t.Fatalf("state = %s, want pending approval kept", res.NewState)
	}
}

func TestCourierShortNameReprompts(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "rider", domain.RoleCourier)
	h.park(t, id, state.CourierRegisterCollectName)

	res := h.say(t, "rider", "ab")
	if res.NewState != state.CourierRegisterCollectName {
		t.Fatalf("short name moved state to %s", res.NewState)
	}
	if _, ok := h.snapshot(t, id).String(state.KeyRegName); ok {
		t.Fatal("rejected input must not be stored")
	}
}

func TestCourierTakesJob(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "rider", domain.RoleCourier)
	h.world.deliveries = []domain.Delivery{
		{ID: 300, PickupAddress: "A", DropoffAddress: "B", Fee: 25, Status: "open"},
	}
	h.park(t, id, state.CourierMenu)

	res := h.say(t, "rider", "jobs")
	if res.NewState != state.CourierJobsList {
		t.Fatalf("state = %s, want jobs list", res.NewState)
	}

	res = h.say(t, "rider", "1")
	if res.NewState != state.CourierJobsConfirmTake {
		t.Fatalf("state = %s, want take confirm", res.NewState)
	}

	res = h.say(t, "rider", "yes")
	if res.NewState != state.CourierMenu {
		t.Fatalf("state = %s, want menu after take", res.NewState)
	}
	if h.world.deliveries[0].CourierID != id {
		t.Fatalf("job not assigned: %+v", h.world.deliveries[0])
	}
	if _, ok := h.snapshot(t, id).Int64(state.KeyJobID); ok {
		t.Fatal("job keys should be purged after take")
	}
}

func TestCourierJobAlreadyTaken(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "rider", domain.RoleCourier)
	h.world.deliveries = []domain.Delivery{
		{ID: 300, PickupAddress: "A", DropoffAddress: "B", Fee: 25, Status: "open"},
	}
	h.park(t, id, state.CourierMenu)

	h.say(t, "rider", "jobs")
	h.say(t, "rider", "1")

	// Someone else grabs the job between list and confirm.
	h.world.mu.Lock()
	h.world.deliveries[0].CourierID = 999
	h.world.mu.Unlock()

	res := h.say(t, "rider", "yes")
	if res.NewState != state.CourierJobsConfirmTake {
		t.Fatalf("state = %s, want to stay at confirm after rejection", res.NewState)
	}
	if res.Response.Text == "" {
		t.Fatal("expected a rejection message")
	}
	if h.world.deliveries[0].CourierID != 999 {
		t.Fatal("assignment must not be overwritten")
	}
}

func TestCourierStaleJobIndexRerenders(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "rider", domain.RoleCourier)
	h.world.deliveries = []domain.Delivery{
		{ID: 300, PickupAddress: "A", DropoffAddress: "B", Fee: 25, Status: "open"},
	}
	h.park(t, id, state.CourierMenu)
	h.say(t, "rider", "jobs")

	res := h.say(t, "rider", "7")
	if res.NewState != state.CourierJobsList {
		t.Fatalf("stale pick moved state to %s", res.NewState)
	}
}
