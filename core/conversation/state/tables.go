package state

import (
	"fmt"

	"github.com/swiftline/courierbot/core/domain"
)

// Table is a role's directed adjacency list of permitted transitions.
// Self-loops are implicit: staying in the same state never consults the table.
type Table map[ID][]ID

var transitions = map[domain.Role]Table{
	domain.RoleSender: {
		SenderMenu: {
			SenderNewDeliveryPickupCity,
			SenderShipmentsList,
			SenderCourierOptinConfirm,
		},
		SenderNewDeliveryPickupCity:     {SenderNewDeliveryPickupStreet},
		SenderNewDeliveryPickupStreet:   {SenderNewDeliveryPickupNumber},
		SenderNewDeliveryPickupNumber:   {SenderNewDeliveryDropoffCity},
		SenderNewDeliveryDropoffCity:    {SenderNewDeliveryDropoffStreet},
		SenderNewDeliveryDropoffStreet:  {SenderNewDeliveryDropoffNumber},
		SenderNewDeliveryDropoffNumber:  {SenderNewDeliveryRecipientPhone},
		SenderNewDeliveryRecipientPhone: {SenderNewDeliveryConfirm},
		SenderNewDeliveryConfirm:        {SenderMenu},

		SenderShipmentsList:   {SenderShipmentsDetail, SenderMenu},
		SenderShipmentsDetail: {SenderShipmentsList, SenderMenu},

		SenderCourierOptinConfirm: {SenderMenu},
	},

	domain.RoleCourier: {
		CourierRegisterCollectName:     {CourierRegisterCollectPhone},
		CourierRegisterCollectPhone:    {CourierRegisterCollectCity},
		CourierRegisterCollectCity:     {CourierRegisterCollectDocument},
		CourierRegisterCollectDocument: {CourierRegisterCollectVehicle},
		CourierRegisterCollectVehicle:  {CourierRegisterPendingApproval},
		CourierRegisterPendingApproval: {CourierMenu},

		CourierMenu: {CourierJobsList},

		CourierJobsList:        {CourierJobsConfirmTake, CourierMenu},
		CourierJobsConfirmTake: {CourierMenu, CourierJobsList},
	},

	domain.RoleDispatcher: {
		DispatcherMenu: {
			DispatcherAddShipmentPickupAddress,
			DispatcherManualChargeSelectCourier,
			DispatcherShipmentsList,
		},
		DispatcherAddShipmentPickupAddress:  {DispatcherAddShipmentDropoffAddress},
		DispatcherAddShipmentDropoffAddress: {DispatcherAddShipmentRecipientPhone},
		DispatcherAddShipmentRecipientPhone: {DispatcherAddShipmentFee},
		DispatcherAddShipmentFee:            {DispatcherAddShipmentConfirm},
		DispatcherAddShipmentConfirm:        {DispatcherMenu},

		DispatcherManualChargeSelectCourier: {DispatcherManualChargeAmount},
		DispatcherManualChargeAmount:        {DispatcherManualChargeReason},
		DispatcherManualChargeReason:        {DispatcherManualChargeConfirm},
		DispatcherManualChargeConfirm:       {DispatcherMenu},

		DispatcherShipmentsList: {DispatcherMenu},
	},

	domain.RoleStationOwner: {
		StationOwnerMenu: {
			StationOwnerAddDispatcherCollectPhone,
			StationOwnerRemoveDispatcherSelect,
			StationOwnerAddOwnerCollectPhone,
			StationOwnerRemoveOwnerSelect,
			StationOwnerBlacklistAddCollectPhone,
			StationOwnerBlacklistRemoveSelect,
		},
		StationOwnerAddDispatcherCollectPhone: {StationOwnerAddDispatcherConfirm},
		StationOwnerAddDispatcherConfirm:      {StationOwnerMenu},
		StationOwnerRemoveDispatcherSelect:    {StationOwnerRemoveDispatcherConfirm, StationOwnerMenu},
		StationOwnerRemoveDispatcherConfirm:   {StationOwnerMenu},

		StationOwnerAddOwnerCollectPhone: {StationOwnerAddOwnerConfirm},
		StationOwnerAddOwnerConfirm:      {StationOwnerMenu},
		StationOwnerRemoveOwnerSelect:    {StationOwnerRemoveOwnerConfirm, StationOwnerMenu},
		StationOwnerRemoveOwnerConfirm:   {StationOwnerMenu},

		StationOwnerBlacklistAddCollectPhone: {StationOwnerBlacklistAddConfirm},
		StationOwnerBlacklistAddConfirm:      {StationOwnerMenu},
		StationOwnerBlacklistRemoveSelect:    {StationOwnerBlacklistRemoveConfirm, StationOwnerMenu},
		StationOwnerBlacklistRemoveConfirm:   {StationOwnerMenu},
	},
}

// stateSets holds, per role, every state that appears in that role's table
// as a source or a target. Built once at package init.
var stateSets = func() map[domain.Role]map[ID]struct{} {
	sets := make(map[domain.Role]map[ID]struct{}, len(transitions))
	for role, table := range transitions {
		set := make(map[ID]struct{})
		for src, targets := range table {
			set[src] = struct{}{}
			for _, t := range targets {
				set[t] = struct{}{}
			}
		}
		sets[role] = set
	}
	return sets
}()

func init() {
	if err := checkTables(); err != nil {
		panic(err)
	}
}

// checkTables verifies static table consistency: no state is shared
// between roles, and every role's hub is present.
func checkTables() error {
	owner := make(map[ID]domain.Role)
	for role, set := range stateSets {
		for id := range set {
			if prev, dup := owner[id]; dup {
				return fmt.Errorf("state %s claimed by both %s and %s", id, prev, role)
			}
			owner[id] = role
		}
		if _, ok := set[Menu(role)]; !ok {
			return fmt.Errorf("role %s has no %s in its table", role, Menu(role))
		}
	}
	if _, ok := owner[Initial]; ok {
		return fmt.Errorf("%s must stay outside every role table", Initial)
	}
	return nil
}

// States returns the full state set of a role.
func States(role domain.Role) map[ID]struct{} {
	return stateSets[role]
}

// Transitions returns the role's static transition table.
func Transitions(role domain.Role) Table {
	return transitions[role]
}
