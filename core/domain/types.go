// Package domain holds the account and delivery entities the conversation
// engine coordinates, plus the ports to the external collaborators that
// own them. The engine only ever reads these objects; mutations happen
// behind the ports.
package domain

import "github.com/swiftline/courierbot/core/transport"

// Role determines which conversation graph and handler set apply to a user.
type Role string

const (
	// RoleNone marks an account that has not completed onboarding yet.
	RoleNone Role = ""
	// RoleSender can request deliveries.
	RoleSender Role = "sender"
	// RoleCourier picks up and delivers shipments.
	RoleCourier Role = "courier"
	// RoleDispatcher creates shipments and manual charges for a station.
	RoleDispatcher Role = "dispatcher"
	// RoleStationOwner manages a station's dispatchers, owners and blacklist.
	RoleStationOwner Role = "station_owner"
)

// Valid reports whether r is an assigned, known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSender, RoleCourier, RoleDispatcher, RoleStationOwner:
		return true
	}
	return false
}

// Account is the user-directory record behind a chat identity.
type Account struct {
	ID       int64
	Role     Role
	Name     string
	Phone    string
	Platform transport.Platform
	// ChatTarget is the transport-specific address replies are sent to.
	ChatTarget string
	Blocked    bool
}

// Station groups dispatchers and owners under one pickup point.
type Station struct {
	ID     int64
	Name   string
	City   string
	Active bool
}

// Delivery is a shipment moving from pickup to dropoff.
type Delivery struct {
	ID             int64
	StationID      int64
	SenderID       int64
	CourierID      int64
	PickupAddress  string
	DropoffAddress string
	RecipientPhone string
	Fee            float64
	Status         string
}

// DeliveryDraft carries the fields a wizard accumulated before creation.
type DeliveryDraft struct {
	StationID      int64
	SenderID       int64
	PickupAddress  string
	DropoffAddress string
	RecipientPhone string
	Fee            float64
}

// ChargeDraft describes a manual charge a dispatcher applies to a courier.
type ChargeDraft struct {
	StationID int64
	CourierID int64
	Amount    float64
	Reason    string
	CreatedBy int64
}

// CourierProfile is the registration data collected during courier KYC.
type CourierProfile struct {
	AccountID   int64
	FullName    string
	Phone       string
	City        string
	DocumentRef string
	Vehicle     string
}

// Result is the outcome of a domain side-effect call. Message is shown
// to the user verbatim when OK is false.
type Result struct {
	OK      bool
	Message string
}
