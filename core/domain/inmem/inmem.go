// Package inmem backs the collaborator ports with process memory. It is
// the dev-mode wiring: conversations run end to end without the real
// delivery platform behind them.
package inmem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/swiftline/courierbot/core/domain"
)

// World implements every collaborator port over in-process maps.
type World struct {
	mu sync.Mutex

	accounts map[string]*domain.Account
	nextID   int64

	stations             map[int64]*domain.Station
	stationsByDispatcher map[int64]int64
	stationsByOwner      map[int64]int64
	dispatchers          map[int64][]domain.Account
	owners               map[int64][]domain.Account
	couriers             map[int64][]domain.Account
	blacklist            map[int64][]string

	deliveries   []domain.Delivery
	nextDelivery int64

	charges  []domain.ChargeDraft
	profiles []domain.CourierProfile
}

// NewWorld returns an empty in-memory world.
func NewWorld() *World {
	return &World{
		accounts:             make(map[string]*domain.Account),
		nextID:               1,
		stations:             make(map[int64]*domain.Station),
		stationsByDispatcher: make(map[int64]int64),
		stationsByOwner:      make(map[int64]int64),
		dispatchers:          make(map[int64][]domain.Account),
		owners:               make(map[int64][]domain.Account),
		couriers:             make(map[int64][]domain.Account),
		blacklist:            make(map[int64][]string),
		nextDelivery:         1,
	}
}

func identityKey(id domain.PlatformIdentity) string {
	return string(id.Platform) + ":" + id.ExternalID
}

// ResolveOrCreate implements domain.Directory.
func (w *World) ResolveOrCreate(_ context.Context, identity domain.PlatformIdentity) (*domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := identityKey(identity)
	if acct, ok := w.accounts[key]; ok {
		cp := *acct
		return &cp, nil
	}
	acct := &domain.Account{
		ID:         w.nextID,
		Name:       identity.Name,
		Phone:      identity.Phone,
		Platform:   identity.Platform,
		ChatTarget: identity.ChatTarget,
	}
	w.nextID++
	w.accounts[key] = acct
	cp := *acct
	return &cp, nil
}

// SetRole implements domain.Directory.
func (w *World) SetRole(_ context.Context, accountID int64, role domain.Role) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, acct := range w.accounts {
		if acct.ID == accountID {
			acct.Role = role
			return nil
		}
	}
	return fmt.Errorf("inmem: account %d not found", accountID)
}

// Create implements domain.Deliveries.
func (w *World) Create(_ context.Context, draft domain.DeliveryDraft) (domain.Result, error) {
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

// ActiveForSender implements domain.Deliveries.
func (w *World) ActiveForSender(_ context.Context, senderID int64) ([]domain.Delivery, error) {
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

// ActiveForStation implements domain.Deliveries.
func (w *World) ActiveForStation(_ context.Context, stationID int64) ([]domain.Delivery, error) {
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

// OpenJobs implements domain.Deliveries. City filtering is best effort:
// an empty city matches everything.
func (w *World) OpenJobs(_ context.Context, city string) ([]domain.Delivery, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Delivery
	for _, d := range w.deliveries {
		if d.Status != "open" || d.CourierID != 0 {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(d.PickupAddress), strings.ToLower(city)) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Assign implements domain.Deliveries. The first courier wins; later
// attempts get a rejection message, not an error.
func (w *World) Assign(_ context.Context, deliveryID, courierID int64) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.deliveries {
		if w.deliveries[i].ID != deliveryID {
			continue
		}
		if w.deliveries[i].CourierID != 0 {
			return domain.Result{OK: false, Message: "Too late, that job was taken."}, nil
		}
		w.deliveries[i].CourierID = courierID
		w.deliveries[i].Status = "assigned"
		return domain.Result{OK: true}, nil
	}
	return domain.Result{OK: false, Message: "That job is gone."}, nil
}

// AddStation registers a station and binds its first owner.
func (w *World) AddStation(station domain.Station, ownerID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := station
	w.stations[s.ID] = &s
	if ownerID != 0 {
		w.stationsByOwner[ownerID] = s.ID
	}
}

// ByDispatcher implements domain.Stations.
func (w *World) ByDispatcher(_ context.Context, accountID int64) (*domain.Station, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.stationsByDispatcher[accountID]; ok {
		if s, ok := w.stations[id]; ok {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrStationNotFound
}

// ByOwner implements domain.Stations.
func (w *World) ByOwner(_ context.Context, accountID int64) (*domain.Station, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.stationsByOwner[accountID]; ok {
		if s, ok := w.stations[id]; ok {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrStationNotFound
}

// Dispatchers implements domain.Stations.
func (w *World) Dispatchers(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.dispatchers[stationID]...), nil
}

// Owners implements domain.Stations.
func (w *World) Owners(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.owners[stationID]...), nil
}

// AddDispatcher implements domain.Stations. The phone must belong to a
// known account; the rejection goes to the user as a message.
func (w *World) AddDispatcher(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acct := w.findByPhone(phone)
	if acct == nil {
		return domain.Result{OK: false, Message: "No user with that phone number."}, nil
	}
	if _, taken := w.stationsByDispatcher[acct.ID]; taken {
		return domain.Result{OK: false, Message: "That user already dispatches for a station."}, nil
	}
	acct.Role = domain.RoleDispatcher
	w.stationsByDispatcher[acct.ID] = stationID
	w.dispatchers[stationID] = append(w.dispatchers[stationID], *acct)
	return domain.Result{OK: true}, nil
}

// RemoveDispatcher implements domain.Stations.
func (w *World) RemoveDispatcher(_ context.Context, stationID, accountID int64) (domain.Result, error) {
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
	delete(w.stationsByDispatcher, accountID)
	return domain.Result{OK: true}, nil
}

// AddOwner implements domain.Stations.
func (w *World) AddOwner(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acct := w.findByPhone(phone)
	if acct == nil {
		return domain.Result{OK: false, Message: "No user with that phone number."}, nil
	}
	if _, taken := w.stationsByOwner[acct.ID]; taken {
		return domain.Result{OK: false, Message: "That user already owns a station."}, nil
	}
	acct.Role = domain.RoleStationOwner
	w.stationsByOwner[acct.ID] = stationID
	w.owners[stationID] = append(w.owners[stationID], *acct)
	return domain.Result{OK: true}, nil
}

// RemoveOwner implements domain.Stations. The last owner cannot be
// removed or the station would be orphaned.
func (w *World) RemoveOwner(_ context.Context, stationID, accountID int64) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.owners[stationID]) <= 1 {
		return domain.Result{OK: false, Message: "A station needs at least one owner."}, nil
	}
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
	delete(w.stationsByOwner, accountID)
	return domain.Result{OK: true}, nil
}

// CreateManual implements domain.Charges.
func (w *World) CreateManual(_ context.Context, draft domain.ChargeDraft) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.charges = append(w.charges, draft)
	return domain.Result{OK: true}, nil
}

// CouriersForStation implements domain.Charges.
func (w *World) CouriersForStation(_ context.Context, stationID int64) ([]domain.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Account(nil), w.couriers[stationID]...), nil
}

// Add implements domain.Blacklist.
func (w *World) Add(_ context.Context, stationID int64, phone string) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.blacklist[stationID] {
		if p == phone {
			return domain.Result{OK: false, Message: "That number is already blacklisted."}, nil
		}
	}
	w.blacklist[stationID] = append(w.blacklist[stationID], phone)
	return domain.Result{OK: true}, nil
}

// Remove implements domain.Blacklist.
func (w *World) Remove(_ context.Context, stationID int64, phone string) (domain.Result, error) {
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

// Entries implements domain.Blacklist.
func (w *World) Entries(_ context.Context, stationID int64) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.blacklist[stationID]...), nil
}

// SubmitProfile implements domain.Couriers.
func (w *World) SubmitProfile(_ context.Context, profile domain.CourierProfile) (domain.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.profiles {
		if p.AccountID == profile.AccountID {
			return domain.Result{OK: false, Message: "You already have a pending application."}, nil
		}
	}
	w.profiles = append(w.profiles, profile)
	return domain.Result{OK: true}, nil
}

// findByPhone expects w.mu held.
func (w *World) findByPhone(phone string) *domain.Account {
	needle := strings.TrimSpace(phone)
	for _, acct := range w.accounts {
		if acct.Phone == needle {
			return acct
		}
	}
	return nil
}
