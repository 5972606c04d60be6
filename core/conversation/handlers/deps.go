// Package handlers implements the four role-scoped handler families the
// engine dispatches to: Sender, Courier, Dispatcher and StationOwner,
// plus the shared onboarding flow that runs before a role is assigned.
package handlers

import "github.com/swiftline/courierbot/core/domain"

// Deps bundles the external collaborators handlers call for domain side
// effects. Handlers treat every call as opaque and relay failure messages
// to the user verbatim.
type Deps struct {
	Directory  domain.Directory
	Deliveries domain.Deliveries
	Stations   domain.Stations
	Charges    domain.Charges
	Blacklist  domain.Blacklist
	Couriers   domain.Couriers
}
