package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

// fakeWorld is an in-memory stand-in for every collaborator port, shared
// by the scenario tests so one setup drives engine, handlers and store
// together.
type fakeWorld struct {
	mu sync.Mutex

	accounts map[string]*domain.Account
	nextID   int64

	deliveries   []domain.Delivery
	nextDelivery int64

	// stationsByDispatcher / stationsByOwner map account id to station.
	stationsByDispatcher map[int64]*domain.Station
	stationsByOwner      map[int64]*domain.Station
	dispatchers          map[int64][]domain.Account
	owners               map[int64][]domain.Account
	stationCouriers      map[int64][]domain.Account
	blacklist            map[int64][]string

	charges  []domain.ChargeDraft
	profiles []domain.CourierProfile

	removedDispatchers []int64
	removedOwners      []int64
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		accounts:             make(map[string]*domain.Account),
		nextID:               1,
		nextDelivery:         100,
		stationsByDispatcher: make(map[int64]*domain.Station),
		stationsByOwner:      make(map[int64]*domain.Station),
		dispatchers:          make(map[int64][]domain.Account),
		owners:               make(map[int64][]domain.Account),
		stationCouriers:      make(map[int64][]domain.Account),
		blacklist:            make(map[int64][]string),
	}
}

func (w *fakeWorld) deps() Deps {
	return Deps{
		Directory:  w,
		Deliveries: w,
		Stations:   w,
		Charges:    w,
		Blacklist:  w,
		Couriers:   w,
	}
}

// Directory.

func (w *fakeWorld) ResolveOrCreate(_ context.Context, identity domain.PlatformIdentity) (*domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := string(identity.Platform) + ":" + identity.ExternalID
	if acct, ok := w.accounts[key]; ok {
		cp := *acct
		return &cp, nil
	}
	acct := &domain.Account{
		ID:       w.nextID,
		Name:     identity.Name,
		Phone:    identity.Phone,
		Platform: identity.Platform,
	}
	w.nextID++
	w.accounts[key] = acct
	cp := *acct
	return &cp, nil
}

func (w *fakeWorld) SetRole(_ context.Context, accountID int64, role domain.Role) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, acct := range w.accounts {
		if acct.ID == accountID {
			acct.Role = role
		}
	}
	return nil
}

// Deliveries.

func (w *fakeWorld) Create(_ context.Context, draft domain.DeliveryDraft) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deliveries = append(w.deliveries, domain.Delivery{
		ID:             w.nextDelivery,
		StationID:      draft.StationID,
		SenderID:       draft.SenderID,
		PickupAddress:  draft.PickupAddress,
		DropoffAddress: draft.DropoffAddress,
		RecipientPhone: draft.RecipientPhone,
		Fee:            draft.Fee,
		Status:         "open",
	})
	w.nextDelivery++
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) ActiveForSender(_ context.Context, senderID int64) ([]domain.Delivery, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Delivery
	for _, d := range w.deliveries {
		if d.SenderID == senderID && d.Status != "delivered" {
			out = append(out, d)
		}
	}
	return out, nil
}

func (w *fakeWorld) ActiveForStation(_ context.Context, stationID int64) ([]domain.Delivery, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Delivery
	for _, d := range w.deliveries {
		if d.StationID == stationID && d.Status != "delivered" {
			out = append(out, d)
		}
	}
	return out, nil
}

func (w *fakeWorld) OpenJobs(_ context.Context, _ string) ([]domain.Delivery, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Delivery
	for _, d := range w.deliveries {
		if d.Status == "open" && d.CourierID == 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (w *fakeWorld) Assign(_ context.Context, deliveryID, courierID int64) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.deliveries {
		if w.deliveries[i].ID == deliveryID {
			if w.deliveries[i].CourierID != 0 {
				return domain.Result{OK: false, Message: "Too late, that job was taken."}, nil
			}
			w.deliveries[i].CourierID = courierID
			w.deliveries[i].Status = "assigned"
			return domain.Result{OK: true}, nil
		}
	}
	return domain.Result{OK: false, Message: "That job is gone."}, nil
}

// Stations.

func (w *fakeWorld) ByDispatcher(_ context.Context, accountID int64) (*domain.Station, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.stationsByDispatcher[accountID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrStationNotFound
}

func (w *fakeWorld) ByOwner(_ context.Context, accountID int64) (*domain.Station, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.stationsByOwner[accountID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrStationNotFound
}

func (w *fakeWorld) Dispatchers(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.dispatchers[stationID]...), nil
}

func (w *fakeWorld) Owners(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.owners[stationID]...), nil
}

func (w *fakeWorld) AddDispatcher(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dispatchers[stationID] = append(w.dispatchers[stationID], domain.Account{
		ID: w.nextID, Name: "Dispatcher " + phone, Phone: phone, Role: domain.RoleDispatcher,
	})
	w.nextID++
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) RemoveDispatcher(_ context.Context, stationID, accountID int64) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.dispatchers[stationID][:0]
	found := false
	for _, a := range w.dispatchers[stationID] {
		if a.ID == accountID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	w.dispatchers[stationID] = kept
	if !found {
		return domain.Result{OK: false, Message: "That dispatcher is already gone."}, nil
	}
	w.removedDispatchers = append(w.removedDispatchers, accountID)
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) AddOwner(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.owners[stationID] = append(w.owners[stationID], domain.Account{
		ID: w.nextID, Name: "Owner " + phone, Phone: phone, Role: domain.RoleStationOwner,
	})
	w.nextID++
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) RemoveOwner(_ context.Context, stationID, accountID int64) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.owners[stationID][:0]
	found := false
	for _, a := range w.owners[stationID] {
		if a.ID == accountID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	w.owners[stationID] = kept
	if !found {
		return domain.Result{OK: false, Message: "That owner is already gone."}, nil
	}
	w.removedOwners = append(w.removedOwners, accountID)
	return domain.Result{OK: true}, nil
}

// Charges.

func (w *fakeWorld) CreateManual(_ context.Context, draft domain.ChargeDraft) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.charges = append(w.charges, draft)
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) CouriersForStation(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.stationCouriers[stationID]...), nil
}

// Blacklist.

func (w *fakeWorld) Add(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blacklist[stationID] = append(w.blacklist[stationID], phone)
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) Remove(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.blacklist[stationID][:0]
	found := false
	for _, p := range w.blacklist[stationID] {
		if p == phone {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	w.blacklist[stationID] = kept
	if !found {
		return domain.Result{OK: false, Message: "That number is not blacklisted."}, nil
	}
	return domain.Result{OK: true}, nil
}

func (w *fakeWorld) Entries(_ context.Context, stationID int64) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.blacklist[stationID]...), nil
}

// Couriers.

func (w *fakeWorld) SubmitProfile(_ context.Context, profile domain.CourierProfile) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.profiles = append(w.profiles, profile)
	return domain.Result{OK: true}, nil
}

// seedUser creates an account with the given role and returns its id.
func (w *fakeWorld) seedUser(t *testing.T, externalID string, role domain.Role) int64 {
	t.Helper()
	acct, err := w.ResolveOrCreate(context.Background(), domain.PlatformIdentity{
		Platform:   transport.PlatformTelegram,
		ExternalID: externalID,
		Name:       "User " + externalID,
	})
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if role != domain.RoleNone {
		if err := w.SetRole(context.Background(), acct.ID, role); err != nil {
			t.Fatalf("SetRole: %v", err)
		}
	}
	return acct.ID
}

// seedStation creates a station and binds the given accounts to it.
// Zero ids skip the binding.
func (w *fakeWorld) seedStation(id, ownerID, dispatcherID int64) *domain.Station {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &domain.Station{ID: id, Name: "Station", City: "Haifa", Active: true}
	if ownerID != 0 {
		w.stationsByOwner[ownerID] = s
		w.owners[id] = append(w.owners[id], domain.Account{ID: ownerID, Name: "Boss", Phone: "+100", Role: domain.RoleStationOwner})
	}
	if dispatcherID != 0 {
		w.stationsByDispatcher[dispatcherID] = s
		w.dispatchers[id] = append(w.dispatchers[id], domain.Account{ID: dispatcherID, Name: "Dispatch", Phone: "+200", Role: domain.RoleDispatcher})
	}
	return s
}

// dropStation unbinds an account's station, as when the delivery platform
// deletes the station out from under its staff.
func (w *fakeWorld) dropStation(accountID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.stationsByOwner, accountID)
	delete(w.stationsByDispatcher, accountID)
}

// harness bundles a fully wired engine over the fake world and a memory
// session store, mirroring production wiring minus the transports.
type harness struct {
	world  *fakeWorld
	store  session.Store
	engine *conversation.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	world := newFakeWorld()
	store := session.NewMemoryStore()
	d := world.deps()
	eng, err := conversation.NewEngine(conversation.Options{
		Store:      store,
		Directory:  world,
		Handlers:   BuildTable(d),
		Onboarding: Onboarding(d),
		Fallbacks:  BuildFallbacks(d),
		Keywords:   BuildKeywords(d),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &harness{world: world, store: store, engine: eng}
}

// say sends one text message as externalID and fails the test on error.
func (h *harness) say(t *testing.T, externalID, text string) conversation.EngineResult {
	t.Helper()
	res, err := h.engine.HandleMessage(context.Background(), conversation.MessageEvent{
		Platform: transport.PlatformTelegram,
		Text:     text,
		Identity: domain.PlatformIdentity{
			Platform:   transport.PlatformTelegram,
			ExternalID: externalID,
			Name:       "User " + externalID,
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	return res
}

// sendMedia sends a message carrying a media reference.
func (h *harness) sendMedia(t *testing.T, externalID, mediaRef string) conversation.EngineResult {
	t.Helper()
	res, err := h.engine.HandleMessage(context.Background(), conversation.MessageEvent{
		Platform: transport.PlatformTelegram,
		MediaRef: mediaRef,
		Identity: domain.PlatformIdentity{
			Platform:   transport.PlatformTelegram,
			ExternalID: externalID,
			Name:       "User " + externalID,
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage(media %q): %v", mediaRef, err)
	}
	return res
}

// park forces a user's session into a starting state, creating it if needed.
func (h *harness) park(t *testing.T, userID int64, id state.ID) {
	t.Helper()
	if err := h.store.Force(context.Background(), userID, transport.PlatformTelegram, id, nil); err != nil {
		t.Fatalf("Force: %v", err)
	}
}

// currentState reads the stored state for a user.
func (h *harness) currentState(t *testing.T, userID int64) state.ID {
	t.Helper()
	cur, err := h.store.Current(context.Background(), userID, transport.PlatformTelegram)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	return cur
}

// snapshot reads the stored context for a user.
func (h *harness) snapshot(t *testing.T, userID int64) session.Context {
	t.Helper()
	snap, err := h.store.Snapshot(context.Background(), userID, transport.PlatformTelegram)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}
