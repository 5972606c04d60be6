package state

import "github.com/swiftline/courierbot/core/domain"

// Context keys owned by wizards. A wizard's keys are purged from session
// context whenever the conversation returns to the role's menu.
const (
	KeyPickupCity     = "pickup_city"
	KeyPickupStreet   = "pickup_street"
	KeyPickupNumber   = "pickup_number"
	KeyDropoffCity    = "dropoff_city"
	KeyDropoffStreet  = "dropoff_street"
	KeyDropoffNumber  = "dropoff_number"
	KeyRecipientPhone = "recipient_phone"

	KeyShipmentIndex = "shipment_index"
	KeyShipmentID    = "shipment_id"

	KeyRegName     = "reg_name"
	KeyRegPhone    = "reg_phone"
	KeyRegCity     = "reg_city"
	KeyRegDocument = "reg_document"
	KeyRegVehicle  = "reg_vehicle"

	KeyJobIndex = "job_index"
	KeyJobID    = "job_id"

	KeyPickupAddress  = "pickup_address"
	KeyDropoffAddress = "dropoff_address"
	KeyFee            = "fee"

	KeyChargeCourierIndex = "charge_courier_index"
	KeyChargeCourierNames = "charge_courier_names"
	KeyChargeCourierID    = "charge_courier_id"
	KeyChargeCourierName  = "charge_courier_name"
	KeyChargeAmount       = "charge_amount"
	KeyChargeReason       = "charge_reason"

	KeyMemberPhone = "member_phone"

	KeyRemoveIndex  = "remove_index"
	KeyRemoveLabels = "remove_labels"
	KeyRemoveID     = "remove_id"
	KeyRemoveLabel  = "remove_label"
)

// Wizard names a multi-step sub-flow, the states that belong to it and
// the context keys it owns. Membership here is the typed replacement for
// prefix-matching on state strings: the engine asks "is this state inside
// a wizard" before applying menu keyword shortcuts, and the purge on hub
// return removes exactly the owned keys.
type Wizard struct {
	Name   string
	Role   domain.Role
	States []ID
	Keys   []string
}

var wizards = []Wizard{
	{
		Name: "new_delivery",
		Role: domain.RoleSender,
		States: []ID{
			SenderNewDeliveryPickupCity,
			SenderNewDeliveryPickupStreet,
			SenderNewDeliveryPickupNumber,
			SenderNewDeliveryDropoffCity,
			SenderNewDeliveryDropoffStreet,
			SenderNewDeliveryDropoffNumber,
			SenderNewDeliveryRecipientPhone,
			SenderNewDeliveryConfirm,
		},
		Keys: []string{
			KeyPickupCity, KeyPickupStreet, KeyPickupNumber,
			KeyDropoffCity, KeyDropoffStreet, KeyDropoffNumber,
			KeyRecipientPhone,
		},
	},
	{
		Name:   "shipments",
		Role:   domain.RoleSender,
		States: []ID{SenderShipmentsList, SenderShipmentsDetail},
		Keys:   []string{KeyShipmentIndex, KeyShipmentID},
	},
	{
		Name:   "courier_optin",
		Role:   domain.RoleSender,
		States: []ID{SenderCourierOptinConfirm},
		Keys:   nil,
	},
	{
		Name: "register",
		Role: domain.RoleCourier,
		States: []ID{
			CourierRegisterCollectName,
			CourierRegisterCollectPhone,
			CourierRegisterCollectCity,
			CourierRegisterCollectDocument,
			CourierRegisterCollectVehicle,
			CourierRegisterPendingApproval,
		},
		Keys: []string{KeyRegName, KeyRegPhone, KeyRegCity, KeyRegDocument, KeyRegVehicle},
	},
	{
		Name:   "jobs",
		Role:   domain.RoleCourier,
		States: []ID{CourierJobsList, CourierJobsConfirmTake},
		Keys:   []string{KeyJobIndex, KeyJobID},
	},
	{
		Name: "add_shipment",
		Role: domain.RoleDispatcher,
		States: []ID{
			DispatcherAddShipmentPickupAddress,
			DispatcherAddShipmentDropoffAddress,
			DispatcherAddShipmentRecipientPhone,
			DispatcherAddShipmentFee,
			DispatcherAddShipmentConfirm,
		},
		Keys: []string{KeyPickupAddress, KeyDropoffAddress, KeyRecipientPhone, KeyFee},
	},
	{
		Name: "manual_charge",
		Role: domain.RoleDispatcher,
		States: []ID{
			DispatcherManualChargeSelectCourier,
			DispatcherManualChargeAmount,
			DispatcherManualChargeReason,
			DispatcherManualChargeConfirm,
		},
		Keys: []string{
			KeyChargeCourierIndex, KeyChargeCourierNames, KeyChargeCourierID,
			KeyChargeCourierName, KeyChargeAmount, KeyChargeReason,
		},
	},
	{
		Name:   "add_dispatcher",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerAddDispatcherCollectPhone, StationOwnerAddDispatcherConfirm},
		Keys:   []string{KeyMemberPhone},
	},
	{
		Name:   "remove_dispatcher",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerRemoveDispatcherSelect, StationOwnerRemoveDispatcherConfirm},
		Keys:   []string{KeyRemoveIndex, KeyRemoveLabels, KeyRemoveID, KeyRemoveLabel},
	},
	{
		Name:   "add_owner",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerAddOwnerCollectPhone, StationOwnerAddOwnerConfirm},
		Keys:   []string{KeyMemberPhone},
	},
	{
		Name:   "remove_owner",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerRemoveOwnerSelect, StationOwnerRemoveOwnerConfirm},
		Keys:   []string{KeyRemoveIndex, KeyRemoveLabels, KeyRemoveID, KeyRemoveLabel},
	},
	{
		Name:   "blacklist_add",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerBlacklistAddCollectPhone, StationOwnerBlacklistAddConfirm},
		Keys:   []string{KeyMemberPhone},
	},
	{
		Name:   "blacklist_remove",
		Role:   domain.RoleStationOwner,
		States: []ID{StationOwnerBlacklistRemoveSelect, StationOwnerBlacklistRemoveConfirm},
		Keys:   []string{KeyRemoveIndex, KeyRemoveLabels, KeyRemoveID, KeyRemoveLabel},
	},
}

// wizardIndex maps (role, state) to its wizard. Built once at init.
var wizardIndex = func() map[domain.Role]map[ID]*Wizard {
	idx := make(map[domain.Role]map[ID]*Wizard)
	for i := range wizards {
		w := &wizards[i]
		byState, ok := idx[w.Role]
		if !ok {
			byState = make(map[ID]*Wizard)
			idx[w.Role] = byState
		}
		for _, s := range w.States {
			byState[s] = w
		}
	}
	return idx
}()

// WizardOf returns the wizard a state belongs to, if any. The engine uses
// it to suppress keyword shortcuts mid-wizard.
func WizardOf(role domain.Role, id ID) (*Wizard, bool) {
	byState, ok := wizardIndex[role]
	if !ok {
		return nil, false
	}
	w, ok := byState[id]
	return w, ok
}

// WizardByName returns a registered wizard by role and name.
func WizardByName(role domain.Role, name string) (*Wizard, bool) {
	for i := range wizards {
		if wizards[i].Role == role && wizards[i].Name == name {
			return &wizards[i], true
		}
	}
	return nil, false
}
