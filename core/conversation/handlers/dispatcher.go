package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func dispatcherHandlers(d Deps) map[state.ID]conversation.HandlerFn {
	m := make(map[state.ID]conversation.HandlerFn)

	m[state.DispatcherMenu] = dispatcherMenu(d)
	addShipmentWizard(d).install(m)
	m[state.DispatcherManualChargeSelectCourier] = chargeSelectCourier(d)
	manualChargeWizard(d).install(m)
	m[state.DispatcherShipmentsList] = dispatcherShipmentsList()

	return m
}

// requireStation resolves the station behind a station-scoped account.
// A missing station downgrades the user to sender instead of failing.
func requireStation(ctx context.Context, d Deps, role domain.Role, acct *domain.Account) (*domain.Station, conversation.Decision, bool) {
	var station *domain.Station
	var err error
	switch role {
	case domain.RoleDispatcher:
		station, err = d.Stations.ByDispatcher(ctx, acct.ID)
	case domain.RoleStationOwner:
		station, err = d.Stations.ByOwner(ctx, acct.ID)
	}
	if err != nil {
		if dec, ok := recoverLostStation(ctx, d, role, acct); ok {
			return nil, dec, false
		}
		dec := conversation.Decision{
			Reply: textKB("Could not load your station, please try again.", menuKeyboard(role)),
			Next:  state.Menu(role),
			Force: true,
		}
		return nil, dec, false
	}
	return station, conversation.Decision{}, true
}

func dispatcherMenu(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		switch norm(ev.Text) {
		case "new shipment":
			if _, dec, ok := requireStation(ctx, d, domain.RoleDispatcher, acct); !ok {
				return dec, nil
			}
			return conversation.Decision{
				Reply: text("Pickup address?"),
				Next:  state.DispatcherAddShipmentPickupAddress,
			}, nil

		case "manual charge":
			station, dec, ok := requireStation(ctx, d, domain.RoleDispatcher, acct)
			if !ok {
				return dec, nil
			}
			reply, ids, names, err := renderStationCouriers(ctx, d, station.ID)
			if err != nil {
				return conversation.Decision{}, err
			}
			if ids == nil {
				return conversation.Decision{
					Reply: textKB(reply, menuKeyboard(domain.RoleDispatcher)),
					Next:  state.DispatcherMenu,
				}, nil
			}
			return conversation.Decision{
				Reply: text(reply),
				Next:  state.DispatcherManualChargeSelectCourier,
				Delta: session.Context{
					state.KeyChargeCourierIndex: ids,
					state.KeyChargeCourierNames: names,
				},
			}, nil

		case "active shipments":
			station, dec, ok := requireStation(ctx, d, domain.RoleDispatcher, acct)
			if !ok {
				return dec, nil
			}
			active, err := d.Deliveries.ActiveForStation(ctx, station.ID)
			if err != nil {
				return conversation.Decision{}, err
			}
			if len(active) == 0 {
				return conversation.Decision{
					Reply: textKB("No active shipments at your station.", menuKeyboard(domain.RoleDispatcher)),
					Next:  state.DispatcherMenu,
				}, nil
			}
			lines := make([]string, 0, len(active))
			for _, del := range active {
				lines = append(lines, fmt.Sprintf("#%d %s -> %s (%s)", del.ID, del.PickupAddress, del.DropoffAddress, del.Status))
			}
			return conversation.Decision{
				Reply: text(renderNumbered("Active shipments — reply anything to go back:", lines)),
				Next:  state.DispatcherShipmentsList,
			}, nil

		default:
			return conversation.Decision{
				Reply: textKB(menuText(domain.RoleDispatcher), menuKeyboard(domain.RoleDispatcher)),
				Next:  state.DispatcherMenu,
			}, nil
		}
	}
}

func addShipmentWizard(d Deps) *wizardDef {
	w, _ := state.WizardByName(domain.RoleDispatcher, "add_shipment")
	return &wizardDef{
		wizard: w,
		role:   domain.RoleDispatcher,
		fields: []field{
			{state: state.DispatcherAddShipmentPickupAddress, key: state.KeyPickupAddress,
				prompt: "Pickup address?", validate: validateMinLen("pickup address", 5)},
			{state: state.DispatcherAddShipmentDropoffAddress, key: state.KeyDropoffAddress,
				prompt: "Dropoff address?", validate: validateMinLen("dropoff address", 5)},
			{state: state.DispatcherAddShipmentRecipientPhone, key: state.KeyRecipientPhone,
				prompt: "Recipient phone number?", validate: validatePhone},
			{state: state.DispatcherAddShipmentFee, key: state.KeyFee,
				prompt: "Delivery fee?", validate: validateAmount},
		},
		confirm: state.DispatcherAddShipmentConfirm,
		summary: func(c session.Context) string {
			pickup, _ := c.String(state.KeyPickupAddress)
			dropoff, _ := c.String(state.KeyDropoffAddress)
			phone, _ := c.String(state.KeyRecipientPhone)
			fee, _ := c.Float(state.KeyFee)
			return fmt.Sprintf("New shipment:\nPickup: %s\nDropoff: %s\nRecipient: %s\nFee: %.2f\n\nConfirm?",
				pickup, dropoff, phone, fee)
		},
		commit: func(ctx context.Context, acct *domain.Account, c session.Context) (domain.Result, error) {
			station, err := d.Stations.ByDispatcher(ctx, acct.ID)
			if errors.Is(err, domain.ErrStationNotFound) {
				return domain.Result{OK: false, Message: "Your station is no longer available."}, nil
			}
			if err != nil {
				return domain.Result{}, err
			}
			pickup, _ := c.String(state.KeyPickupAddress)
			dropoff, _ := c.String(state.KeyDropoffAddress)
			phone, _ := c.String(state.KeyRecipientPhone)
			fee, _ := c.Float(state.KeyFee)
			return d.Deliveries.Create(ctx, domain.DeliveryDraft{
				StationID:      station.ID,
				PickupAddress:  pickup,
				DropoffAddress: dropoff,
				RecipientPhone: phone,
				Fee:            fee,
			})
		},
		done: "Shipment created.",
	}
}

func renderStationCouriers(ctx context.Context, d Deps, stationID int64) (string, map[string]any, map[string]any, error) {
	couriers, err := d.Charges.CouriersForStation(ctx, stationID)
	if err != nil {
		return "", nil, nil, err
	}
	if len(couriers) == 0 {
		return "No couriers attached to your station.", nil, nil, nil
	}
	lines := make([]string, 0, len(couriers))
	ids := make(map[string]any, len(couriers))
	names := make(map[string]any, len(couriers))
	for i, c := range couriers {
		key := fmt.Sprintf("%d", i+1)
		lines = append(lines, fmt.Sprintf("%s (%s)", c.Name, c.Phone))
		ids[key] = c.ID
		names[key] = c.Name
	}
	return renderNumbered("Pick a courier to charge, or 'cancel':", lines), ids, names, nil
}

func chargeSelectCourier(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if isNegative(ev.Text) || norm(ev.Text) == "menu" {
			return cancelToMenu(domain.RoleDispatcher, "manual_charge"), nil
		}

		ids, _ := sctx.StringMap(state.KeyChargeCourierIndex)
		names, _ := sctx.StringMap(state.KeyChargeCourierNames)
		if key, raw, ok := parseSelection(ev.Text, ids); ok {
			if id, ok := session.AsInt64(raw); ok {
				name, _ := names[key].(string)
				return conversation.Decision{
					Reply: text("Charge amount?"),
					Next:  state.DispatcherManualChargeAmount,
					Delta: session.Context{
						state.KeyChargeCourierID:   id,
						state.KeyChargeCourierName: name,
					},
				}, nil
			}
		}

		// Stale or out-of-range selection: re-render a fresh list.
		station, dec, ok := requireStation(ctx, d, domain.RoleDispatcher, acct)
		if !ok {
			return dec, nil
		}
		reply, freshIDs, freshNames, err := renderStationCouriers(ctx, d, station.ID)
		if err != nil {
			return conversation.Decision{}, err
		}
		if freshIDs == nil {
			return cancelToMenu(domain.RoleDispatcher, "manual_charge"), nil
		}
		return conversation.Decision{
			Reply: text(reply),
			Next:  state.DispatcherManualChargeSelectCourier,
			Delta: session.Context{
				state.KeyChargeCourierIndex: freshIDs,
				state.KeyChargeCourierNames: freshNames,
			},
		}, nil
	}
}

func manualChargeWizard(d Deps) *wizardDef {
	w, _ := state.WizardByName(domain.RoleDispatcher, "manual_charge")
	return &wizardDef{
		wizard: w,
		role:   domain.RoleDispatcher,
		fields: []field{
			{state: state.DispatcherManualChargeAmount, key: state.KeyChargeAmount,
				prompt: "Charge amount?", validate: validateAmount},
			{state: state.DispatcherManualChargeReason, key: state.KeyChargeReason,
				prompt: "Reason for the charge?", validate: validateMinLen("reason", 3)},
		},
		confirm: state.DispatcherManualChargeConfirm,
		summary: func(c session.Context) string {
			name, _ := c.String(state.KeyChargeCourierName)
			amount, _ := c.Float(state.KeyChargeAmount)
			reason, _ := c.String(state.KeyChargeReason)
			return fmt.Sprintf("Manual charge:\nCourier: %s\nAmount: %.2f\nReason: %s\n\nConfirm?",
				name, amount, reason)
		},
		commit: func(ctx context.Context, acct *domain.Account, c session.Context) (domain.Result, error) {
			station, err := d.Stations.ByDispatcher(ctx, acct.ID)
			if errors.Is(err, domain.ErrStationNotFound) {
				return domain.Result{OK: false, Message: "Your station is no longer available."}, nil
			}
			if err != nil {
				return domain.Result{}, err
			}
			courierID, _ := c.Int64(state.KeyChargeCourierID)
			amount, _ := c.Float(state.KeyChargeAmount)
			reason, _ := c.String(state.KeyChargeReason)
			return d.Charges.CreateManual(ctx, domain.ChargeDraft{
				StationID: station.ID,
				CourierID: courierID,
				Amount:    amount,
				Reason:    reason,
				CreatedBy: acct.ID,
			})
		},
		done: "Charge recorded.",
	}
}

func dispatcherShipmentsList() conversation.HandlerFn {
	return func(_ context.Context, _ *domain.Account, _ conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		return conversation.Decision{
			Reply: textKB(menuText(domain.RoleDispatcher), menuKeyboard(domain.RoleDispatcher)),
			Next:  state.DispatcherMenu,
		}, nil
	}
}
