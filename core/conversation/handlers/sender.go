package handlers

import (
	"context"
	"fmt"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func senderHandlers(d Deps) map[state.ID]conversation.HandlerFn {
	m := make(map[state.ID]conversation.HandlerFn)

	m[state.SenderMenu] = senderMenu(d)
	newDeliveryWizard(d).install(m)
	m[state.SenderShipmentsList] = senderShipmentsList(d)
	m[state.SenderShipmentsDetail] = senderShipmentsDetail(d)
	m[state.SenderCourierOptinConfirm] = senderCourierOptin()

	return m
}

func senderMenu(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		switch norm(ev.Text) {
		case "new delivery":
			return conversation.Decision{
				Reply: text("Which city do we pick up from?"),
				Next:  state.SenderNewDeliveryPickupCity,
			}, nil
		case "my shipments", "active shipments":
			reply, index, err := renderSenderShipments(ctx, d, acct.ID)
			if err != nil {
				return conversation.Decision{}, err
			}
			if index == nil {
				return conversation.Decision{
					Reply: textKB(reply, menuKeyboard(domain.RoleSender)),
					Next:  state.SenderMenu,
				}, nil
			}
			return conversation.Decision{
				Reply: text(reply),
				Next:  state.SenderShipmentsList,
				Delta: session.Context{state.KeyShipmentIndex: index},
			}, nil
		case "become courier":
			return conversation.Decision{
				Reply: textKB("Switch to courier mode? You'll go through a short registration.", confirmKeyboard()),
				Next:  state.SenderCourierOptinConfirm,
			}, nil
		default:
			return conversation.Decision{
				Reply: textKB(menuText(domain.RoleSender), menuKeyboard(domain.RoleSender)),
				Next:  state.SenderMenu,
			}, nil
		}
	}
}

func newDeliveryWizard(d Deps) *wizardDef {
	w, _ := state.WizardByName(domain.RoleSender, "new_delivery")
	return &wizardDef{
		wizard: w,
		role:   domain.RoleSender,
		fields: []field{
			{state: state.SenderNewDeliveryPickupCity, key: state.KeyPickupCity,
				prompt: "Which city do we pick up from?", validate: validateMinLen("city", 2)},
			{state: state.SenderNewDeliveryPickupStreet, key: state.KeyPickupStreet,
				prompt: "Pickup street?", validate: validateMinLen("street", 2)},
			{state: state.SenderNewDeliveryPickupNumber, key: state.KeyPickupNumber,
				prompt: "Pickup house number?", validate: validateNonEmpty("house number")},
			{state: state.SenderNewDeliveryDropoffCity, key: state.KeyDropoffCity,
				prompt: "Which city do we deliver to?", validate: validateMinLen("city", 2)},
			{state: state.SenderNewDeliveryDropoffStreet, key: state.KeyDropoffStreet,
				prompt: "Dropoff street?", validate: validateMinLen("street", 2)},
			{state: state.SenderNewDeliveryDropoffNumber, key: state.KeyDropoffNumber,
				prompt: "Dropoff house number?", validate: validateNonEmpty("house number")},
			{state: state.SenderNewDeliveryRecipientPhone, key: state.KeyRecipientPhone,
				prompt: "Recipient phone number?", validate: validatePhone},
		},
		confirm: state.SenderNewDeliveryConfirm,
		summary: func(c session.Context) string {
			pickup := joinAddress(c, state.KeyPickupCity, state.KeyPickupStreet, state.KeyPickupNumber)
			dropoff := joinAddress(c, state.KeyDropoffCity, state.KeyDropoffStreet, state.KeyDropoffNumber)
			phone, _ := c.String(state.KeyRecipientPhone)
			return fmt.Sprintf("New delivery:\nPickup: %s\nDropoff: %s\nRecipient: %s\n\nConfirm?",
				pickup, dropoff, phone)
		},
		commit: func(ctx context.Context, acct *domain.Account, c session.Context) (domain.Result, error) {
			phone, _ := c.String(state.KeyRecipientPhone)
			return d.Deliveries.Create(ctx, domain.DeliveryDraft{
				SenderID:       acct.ID,
				PickupAddress:  joinAddress(c, state.KeyPickupCity, state.KeyPickupStreet, state.KeyPickupNumber),
				DropoffAddress: joinAddress(c, state.KeyDropoffCity, state.KeyDropoffStreet, state.KeyDropoffNumber),
				RecipientPhone: phone,
			})
		},
		done: "Delivery created. A courier will pick it up soon.",
	}
}

func joinAddress(c session.Context, cityKey, streetKey, numberKey string) string {
	city, _ := c.String(cityKey)
	street, _ := c.String(streetKey)
	number, _ := c.String(numberKey)
	return fmt.Sprintf("%s, %s %s", city, street, number)
}

func renderSenderShipments(ctx context.Context, d Deps, senderID int64) (string, map[string]any, error) {
	active, err := d.Deliveries.ActiveForSender(ctx, senderID)
	if err != nil {
		return "", nil, err
	}
	if len(active) == 0 {
		return "You have no active shipments.", nil, nil
	}
	lines := make([]string, 0, len(active))
	index := make(map[string]any, len(active))
	for i, del := range active {
		lines = append(lines, fmt.Sprintf("%s -> %s (%s)", del.PickupAddress, del.DropoffAddress, del.Status))
		index[fmt.Sprintf("%d", i+1)] = del.ID
	}
	return renderNumbered("Your active shipments — reply with a number for details, or 'menu':", lines), index, nil
}

func senderShipmentsList(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if norm(ev.Text) == "menu" || isNegative(ev.Text) {
			return cancelToMenu(domain.RoleSender, "shipments"), nil
		}

		index, _ := sctx.StringMap(state.KeyShipmentIndex)
		if _, raw, ok := parseSelection(ev.Text, index); ok {
			if id, ok := session.AsInt64(raw); ok {
				return conversation.Decision{
					Reply: text(fmt.Sprintf("Shipment #%d. Reply 'back' for the list or 'menu'.", id)),
					Next:  state.SenderShipmentsDetail,
					Delta: session.Context{state.KeyShipmentID: id},
				}, nil
			}
		}

		// Stale or unparsable selection: re-render a fresh list.
		reply, freshIndex, err := renderSenderShipments(ctx, d, acct.ID)
		if err != nil {
			return conversation.Decision{}, err
		}
		if freshIndex == nil {
			return cancelToMenu(domain.RoleSender, "shipments"), nil
		}
		return conversation.Decision{
			Reply: text(reply),
			Next:  state.SenderShipmentsList,
			Delta: session.Context{state.KeyShipmentIndex: freshIndex},
		}, nil
	}
}

func senderShipmentsDetail(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if norm(ev.Text) == "back" {
			reply, index, err := renderSenderShipments(ctx, d, acct.ID)
			if err != nil {
				return conversation.Decision{}, err
			}
			if index == nil {
				return cancelToMenu(domain.RoleSender, "shipments"), nil
			}
			return conversation.Decision{
				Reply: text(reply),
				Next:  state.SenderShipmentsList,
				Delta: session.Context{state.KeyShipmentIndex: index},
			}, nil
		}
		return cancelToMenu(domain.RoleSender, "shipments"), nil
	}
}

func senderCourierOptin() conversation.HandlerFn {
	return func(_ context.Context, _ *domain.Account, ev conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		switch {
		case isAffirmative(ev.Text):
			role := domain.RoleCourier
			return conversation.Decision{
				Reply:   text("Let's register you as a courier.\nWhat is your full name?"),
				Next:    state.CourierRegisterCollectName,
				NewRole: &role,
			}, nil
		case isNegative(ev.Text):
			return conversation.Decision{
				Reply: textKB("Staying a sender.", menuKeyboard(domain.RoleSender)),
				Next:  state.SenderMenu,
			}, nil
		default:
			return conversation.Decision{
				Reply: textKB("Switch to courier mode?", confirmKeyboard()),
				Next:  state.SenderCourierOptinConfirm,
			}, nil
		}
	}
}
