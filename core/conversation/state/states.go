// Package state defines the conversation vocabulary: role-scoped state
// identifiers, the static transition tables between them, and the wizard
// namespaces used for guard checks and context cleanup.
package state

import "github.com/swiftline/courierbot/core/domain"

// ID identifies one step of a role's conversation graph. Values are
// namespaced as "<ROLE>.<SUBFLOW>.<STEP>", except the shared Initial
// sentinel used before a role is assigned.
type ID string

// Initial is the zero state every session starts in. It belongs to no
// role's table; the engine routes it to the onboarding handler.
const Initial ID = "INITIAL"

// Sender states.
const (
	SenderMenu ID = "SENDER.MENU"

	SenderNewDeliveryPickupCity     ID = "SENDER.NEW_DELIVERY.PICKUP_CITY"
	SenderNewDeliveryPickupStreet   ID = "SENDER.NEW_DELIVERY.PICKUP_STREET"
	SenderNewDeliveryPickupNumber   ID = "SENDER.NEW_DELIVERY.PICKUP_NUMBER"
	SenderNewDeliveryDropoffCity    ID = "SENDER.NEW_DELIVERY.DROPOFF_CITY"
	SenderNewDeliveryDropoffStreet  ID = "SENDER.NEW_DELIVERY.DROPOFF_STREET"
	SenderNewDeliveryDropoffNumber  ID = "SENDER.NEW_DELIVERY.DROPOFF_NUMBER"
	SenderNewDeliveryRecipientPhone ID = "SENDER.NEW_DELIVERY.RECIPIENT_PHONE"
	SenderNewDeliveryConfirm        ID = "SENDER.NEW_DELIVERY.CONFIRM"

	SenderShipmentsList   ID = "SENDER.SHIPMENTS.LIST"
	SenderShipmentsDetail ID = "SENDER.SHIPMENTS.DETAIL"

	SenderCourierOptinConfirm ID = "SENDER.COURIER_OPTIN.CONFIRM"
)

// Courier states.
const (
	CourierMenu ID = "COURIER.MENU"

	CourierRegisterCollectName     ID = "COURIER.REGISTER.COLLECT_NAME"
	CourierRegisterCollectPhone    ID = "COURIER.REGISTER.COLLECT_PHONE"
	CourierRegisterCollectCity     ID = "COURIER.REGISTER.COLLECT_CITY"
	CourierRegisterCollectDocument ID = "COURIER.REGISTER.COLLECT_DOCUMENT"
	CourierRegisterCollectVehicle  ID = "COURIER.REGISTER.COLLECT_VEHICLE"
	CourierRegisterPendingApproval ID = "COURIER.REGISTER.PENDING_APPROVAL"

	CourierJobsList        ID = "COURIER.JOBS.LIST"
	CourierJobsConfirmTake ID = "COURIER.JOBS.CONFIRM_TAKE"
)

// Dispatcher states.
const (
	DispatcherMenu ID = "DISPATCHER.MENU"

	DispatcherAddShipmentPickupAddress  ID = "DISPATCHER.ADD_SHIPMENT.PICKUP_ADDRESS"
	DispatcherAddShipmentDropoffAddress ID = "DISPATCHER.ADD_SHIPMENT.DROPOFF_ADDRESS"
	DispatcherAddShipmentRecipientPhone ID = "DISPATCHER.ADD_SHIPMENT.RECIPIENT_PHONE"
	DispatcherAddShipmentFee            ID = "DISPATCHER.ADD_SHIPMENT.FEE"
	DispatcherAddShipmentConfirm        ID = "DISPATCHER.ADD_SHIPMENT.CONFIRM"

	DispatcherManualChargeSelectCourier ID = "DISPATCHER.MANUAL_CHARGE.SELECT_COURIER"
	DispatcherManualChargeAmount        ID = "DISPATCHER.MANUAL_CHARGE.AMOUNT"
	DispatcherManualChargeReason        ID = "DISPATCHER.MANUAL_CHARGE.REASON"
	DispatcherManualChargeConfirm       ID = "DISPATCHER.MANUAL_CHARGE.CONFIRM"

	DispatcherShipmentsList ID = "DISPATCHER.SHIPMENTS.LIST"
)

// StationOwner states.
const (
	StationOwnerMenu ID = "STATION_OWNER.MENU"

	StationOwnerAddDispatcherCollectPhone ID = "STATION_OWNER.ADD_DISPATCHER.COLLECT_PHONE"
	StationOwnerAddDispatcherConfirm      ID = "STATION_OWNER.ADD_DISPATCHER.CONFIRM"
	StationOwnerRemoveDispatcherSelect    ID = "STATION_OWNER.REMOVE_DISPATCHER.SELECT"
	StationOwnerRemoveDispatcherConfirm   ID = "STATION_OWNER.REMOVE_DISPATCHER.CONFIRM"

	StationOwnerAddOwnerCollectPhone ID = "STATION_OWNER.ADD_OWNER.COLLECT_PHONE"
	StationOwnerAddOwnerConfirm      ID = "STATION_OWNER.ADD_OWNER.CONFIRM"
	StationOwnerRemoveOwnerSelect    ID = "STATION_OWNER.REMOVE_OWNER.SELECT"
	StationOwnerRemoveOwnerConfirm   ID = "STATION_OWNER.REMOVE_OWNER.CONFIRM"

	StationOwnerBlacklistAddCollectPhone ID = "STATION_OWNER.BLACKLIST_ADD.COLLECT_PHONE"
	StationOwnerBlacklistAddConfirm      ID = "STATION_OWNER.BLACKLIST_ADD.CONFIRM"
	StationOwnerBlacklistRemoveSelect    ID = "STATION_OWNER.BLACKLIST_REMOVE.SELECT"
	StationOwnerBlacklistRemoveConfirm   ID = "STATION_OWNER.BLACKLIST_REMOVE.CONFIRM"
)

// Menu returns the hub state every completed or cancelled sub-flow of a
// role returns to.
func Menu(role domain.Role) ID {
	switch role {
	case domain.RoleSender:
		return SenderMenu
	case domain.RoleCourier:
		return CourierMenu
	case domain.RoleDispatcher:
		return DispatcherMenu
	case domain.RoleStationOwner:
		return StationOwnerMenu
	}
	return Initial
}

// Entry returns the state a freshly assigned role starts in.
func Entry(role domain.Role) ID {
	if role == domain.RoleCourier {
		return CourierRegisterCollectName
	}
	return Menu(role)
}

// RoleOf reports which role's table owns the given state. The Initial
// sentinel belongs to no role.
func RoleOf(id ID) (domain.Role, bool) {
	for role, set := range stateSets {
		if _, ok := set[id]; ok {
			return role, true
		}
	}
	return domain.RoleNone, false
}

// Known reports whether id belongs to the given role's table.
func Known(role domain.Role, id ID) bool {
	set, ok := stateSets[role]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}
