package domain

import (
	"context"
	"errors"

	"github.com/swiftline/courierbot/core/transport"
)

// ErrStationNotFound is returned when an account's backing station no
// longer exists; handlers downgrade the account instead of failing.
var ErrStationNotFound = errors.New("station not found")

// PlatformIdentity is the raw identity a transport extracted from an
// inbound message, enough to resolve or create an account.
type PlatformIdentity struct {
	Platform   transport.Platform
	ExternalID string
	Name       string
	Phone      string
	ChatTarget string
}

// Directory resolves chat identities to accounts and applies role changes.
type Directory interface {
	ResolveOrCreate(ctx context.Context, identity PlatformIdentity) (*Account, error)
	SetRole(ctx context.Context, accountID int64, role Role) error
}

// Deliveries owns shipment lifecycle outside the conversation.
type Deliveries interface {
	Create(ctx context.Context, draft DeliveryDraft) (Result, error)
	ActiveForSender(ctx context.Context, senderID int64) ([]Delivery, error)
	ActiveForStation(ctx context.Context, stationID int64) ([]Delivery, error)
	OpenJobs(ctx context.Context, city string) ([]Delivery, error)
	Assign(ctx context.Context, deliveryID, courierID int64) (Result, error)
}

// Stations owns station membership: which accounts dispatch or own a station.
type Stations interface {
	ByDispatcher(ctx context.Context, accountID int64) (*Station, error)
	ByOwner(ctx context.Context, accountID int64) (*Station, error)
	Dispatchers(ctx context.Context, stationID int64) ([]Account, error)
	Owners(ctx context.Context, stationID int64) ([]Account, error)
	AddDispatcher(ctx context.Context, stationID int64, phone string) (Result, error)
	RemoveDispatcher(ctx context.Context, stationID, accountID int64) (Result, error)
	AddOwner(ctx context.Context, stationID int64, phone string) (Result, error)
	RemoveOwner(ctx context.Context, stationID, accountID int64) (Result, error)
}

// Charges owns the manual charge ledger entry point.
type Charges interface {
	CreateManual(ctx context.Context, draft ChargeDraft) (Result, error)
	CouriersForStation(ctx context.Context, stationID int64) ([]Account, error)
}

// Blacklist owns per-station blocked phone numbers.
type Blacklist interface {
	Add(ctx context.Context, stationID int64, phone string) (Result, error)
	Remove(ctx context.Context, stationID int64, phone string) (Result, error)
	Entries(ctx context.Context, stationID int64) ([]string, error)
}

// Couriers owns courier registration records.
type Couriers interface {
	SubmitProfile(ctx context.Context, profile CourierProfile) (Result, error)
}
