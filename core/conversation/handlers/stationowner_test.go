package handlers

import (
	"strings"
	"testing"

	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func TestOwnerAddsDispatcher(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.park(t, id, state.StationOwnerMenu)

	res := h.say(t, "o1", "add dispatcher")
	if res.NewState != state.StationOwnerAddDispatcherCollectPhone {
		t.Fatalf("state = %s, want phone step", res.NewState)
	}

	res = h.say(t, "o1", "+972521112233")
	if res.NewState != state.StationOwnerAddDispatcherConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "+972521112233") {
		t.Fatalf("summary missing phone: %q", res.Response.Text)
	}

	res = h.say(t, "o1", "yes")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("state = %s, want menu after commit", res.NewState)
	}
	if len(h.world.dispatchers[7]) != 1 {
		t.Fatalf("dispatchers = %d, want 1", len(h.world.dispatchers[7]))
	}
	if h.world.dispatchers[7][0].Phone != "+972521112233" {
		t.Fatalf("unexpected dispatcher: %+v", h.world.dispatchers[7][0])
	}
	if _, ok := h.snapshot(t, id).String(state.KeyMemberPhone); ok {
		t.Fatal("phone key should be purged after commit")
	}
}

func TestOwnerRemovesDispatcherWithStaleIndex(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.world.dispatchers[7] = []domain.Account{
		{ID: 41, Name: "Rami", Phone: "+300"},
		{ID: 42, Name: "Noa", Phone: "+301"},
	}
	h.park(t, id, state.StationOwnerMenu)

	res := h.say(t, "o1", "remove dispatcher")
	if res.NewState != state.StationOwnerRemoveDispatcherSelect {
		t.Fatalf("state = %s, want selection", res.NewState)
	}

	// Out-of-range pick stays in selection with a fresh list.
	res = h.say(t, "o1", "remove 9")
	if res.NewState != state.StationOwnerRemoveDispatcherSelect {
		t.Fatalf("stale pick moved state to %s", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "Rami") {
		t.Fatalf("expected a fresh list, got %q", res.Response.Text)
	}

	res = h.say(t, "o1", "2")
	if res.NewState != state.StationOwnerRemoveDispatcherConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}
	if !strings.Contains(res.Response.Text, "Noa") {
		t.Fatalf("confirm should name the target: %q", res.Response.Text)
	}

	res = h.say(t, "o1", "yes")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("state = %s, want menu after removal", res.NewState)
	}
	if len(h.world.removedDispatchers) != 1 || h.world.removedDispatchers[0] != 42 {
		t.Fatalf("removed = %v, want [42]", h.world.removedDispatchers)
	}
	snap := h.snapshot(t, id)
	for _, key := range []string{state.KeyRemoveIndex, state.KeyRemoveID, state.KeyRemoveLabel} {
		if _, ok := snap[key]; ok {
			t.Fatalf("key %s survived the removal purge", key)
		}
	}
}

func TestOwnerRemoveDeclinedKeepsEveryone(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.world.owners[7] = append(h.world.owners[7], domain.Account{ID: 51, Name: "Second", Phone: "+400"})
	h.park(t, id, state.StationOwnerMenu)

	h.say(t, "o1", "remove owner")
	h.say(t, "o1", "2")
	res := h.say(t, "o1", "no")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("state = %s, want menu after decline", res.NewState)
	}
	if len(h.world.removedOwners) != 0 {
		t.Fatalf("decline must remove nobody, got %v", h.world.removedOwners)
	}
	if len(h.world.owners[7]) != 2 {
		t.Fatalf("owners = %d, want 2", len(h.world.owners[7]))
	}
}

func TestOwnerBlacklistAddThenRemove(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.park(t, id, state.StationOwnerMenu)

	h.say(t, "o1", "blacklist add")
	h.say(t, "o1", "+972509998877")
	res := h.say(t, "o1", "yes")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("state = %s, want menu after add", res.NewState)
	}
	if len(h.world.blacklist[7]) != 1 || h.world.blacklist[7][0] != "+972509998877" {
		t.Fatalf("blacklist = %v", h.world.blacklist[7])
	}

	res = h.say(t, "o1", "blacklist remove")
	if res.NewState != state.StationOwnerBlacklistRemoveSelect {
		t.Fatalf("state = %s, want selection", res.NewState)
	}
	res = h.say(t, "o1", "1")
	if res.NewState != state.StationOwnerBlacklistRemoveConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}
	res = h.say(t, "o1", "yes")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("state = %s, want menu after removal", res.NewState)
	}
	if len(h.world.blacklist[7]) != 0 {
		t.Fatalf("blacklist should be empty, got %v", h.world.blacklist[7])
	}
}

func TestOwnerEmptyListShortCircuits(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.park(t, id, state.StationOwnerMenu)

	res := h.say(t, "o1", "blacklist remove")
	if res.NewState != state.StationOwnerMenu {
		t.Fatalf("empty list should stay at menu, got %s", res.NewState)
	}
}

func TestOwnerStationGoneDowngradesOnIdleMessage(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.park(t, id, state.StationOwnerMenu)
	h.world.dropStation(id)

	res := h.say(t, "o1", "hello")
	if res.NewState != state.SenderMenu {
		t.Fatalf("state = %s, want sender menu after downgrade", res.NewState)
	}
	if got := roleOf(t, h.world, "o1"); got != domain.RoleSender {
		t.Fatalf("role = %s, want sender", got)
	}
	if len(h.snapshot(t, id)) != 0 {
		t.Fatal("context should be wiped on downgrade")
	}
}

func TestOwnerStationGoneDowngradesAtConfirm(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.world.seedStation(7, id, 0)
	h.park(t, id, state.StationOwnerMenu)

	h.say(t, "o1", "add dispatcher")
	res := h.say(t, "o1", "+972521112233")
	if res.NewState != state.StationOwnerAddDispatcherConfirm {
		t.Fatalf("state = %s, want confirm", res.NewState)
	}

	h.world.dropStation(id)
	res = h.say(t, "o1", "yes")
	if res.NewState != state.SenderMenu {
		t.Fatalf("state = %s, want sender menu after downgrade", res.NewState)
	}
	if got := roleOf(t, h.world, "o1"); got != domain.RoleSender {
		t.Fatalf("role = %s, want sender", got)
	}
	if len(h.world.dispatchers[7]) != 0 {
		t.Fatal("no dispatcher should be added without a station")
	}
	if len(h.snapshot(t, id)) != 0 {
		t.Fatal("context should be wiped on downgrade")
	}
}

func TestOwnerStationGoneDowngrades(t *testing.T) {
	h := newHarness(t)
	id := h.world.seedUser(t, "o1", domain.RoleStationOwner)
	h.park(t, id, state.StationOwnerMenu)

	res := h.say(t, "o1", "add dispatcher")
	if res.NewState != state.SenderMenu {
		t.Fatalf("state = %s, want sender menu after downgrade", res.NewState)
	}
	if got := roleOf(t, h.world, "o1"); got != domain.RoleSender {
		t.Fatalf("role = %s, want sender", got)
	}
}
