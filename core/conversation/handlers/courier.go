package handlers

import (
	"context"
	"fmt"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

func courierHandlers(d Deps) map[state.ID]conversation.HandlerFn {
	m := make(map[state.ID]conversation.HandlerFn)

	installCourierRegistration(d, m)
	m[state.CourierMenu] = courierMenu(d)
	m[state.CourierJobsList] = courierJobsList(d)
	m[state.CourierJobsConfirmTake] = courierConfirmTake(d)

	return m
}

// registration is a linear KYC chain without a confirm step: the last
// field submits the profile and parks the session at PENDING_APPROVAL
// until an external approval moves it to the menu.
var registrationFields = []field{
	{state: state.CourierRegisterCollectName, key: state.KeyRegName,
		prompt: "What is your full name?", validate: validateMinLen("name", 3)},
	{state: state.CourierRegisterCollectPhone, key: state.KeyRegPhone,
		prompt: "Your phone number?", validate: validatePhone},
	{state: state.CourierRegisterCollectCity, key: state.KeyRegCity,
		prompt: "Which city do you work in?", validate: validateMinLen("city", 2)},
	{state: state.CourierRegisterCollectDocument, key: state.KeyRegDocument,
		prompt: "Send a photo of your ID document.", media: true,
		validate: validateNonEmpty("document")},
	{state: state.CourierRegisterCollectVehicle, key: state.KeyRegVehicle,
		prompt: "What vehicle do you use? (bike, scooter, car)", validate: validateMinLen("vehicle", 3)},
}

func installCourierRegistration(d Deps, m map[state.ID]conversation.HandlerFn) {
	for i := range registrationFields {
		f := registrationFields[i]
		last := i == len(registrationFields)-1
		var next state.ID
		nextPrompt := ""
		if !last {
			next = registrationFields[i+1].state
			nextPrompt = registrationFields[i+1].prompt
		}

		m[f.state] = func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
			input := ev.Text
			if f.media {
				if ev.MediaRef == "" {
					return conversation.Decision{
						Reply: text("Please send a photo or document.\n" + f.prompt),
						Next:  f.state,
					}, nil
				}
				input = ev.MediaRef
			}
			value, err := f.validate(input)
			if err != nil {
				return conversation.Decision{
					Reply: text(err.Error() + "\n" + f.prompt),
					Next:  f.state,
				}, nil
			}

			delta := session.Context{f.key: value}
			if !last {
				return conversation.Decision{Reply: text(nextPrompt), Next: next, Delta: delta}, nil
			}

			full := sctx.Merge(delta)
			res, err := d.Couriers.SubmitProfile(ctx, profileFromContext(acct.ID, full))
			if err != nil {
				return conversation.Decision{}, fmt.Errorf("submit courier profile: %w", err)
			}
			if !res.OK {
				return conversation.Decision{
					Reply: text(res.Message + "\n" + f.prompt),
					Next:  f.state,
				}, nil
			}
			return conversation.Decision{
				Reply: text("Thanks! Your application is under review. We'll message you once it's approved."),
				Next:  state.CourierRegisterPendingApproval,
				Delta: delta,
			}, nil
		}
	}

	m[state.CourierRegisterPendingApproval] = func(_ context.Context, _ *domain.Account, _ conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		return conversation.Decision{
			Reply: text("Your application is still under review. Hang tight!"),
			Next:  state.CourierRegisterPendingApproval,
		}, nil
	}
}

func profileFromContext(accountID int64, c session.Context) domain.CourierProfile {
	name, _ := c.String(state.KeyRegName)
	phone, _ := c.String(state.KeyRegPhone)
	city, _ := c.String(state.KeyRegCity)
	doc, _ := c.String(state.KeyRegDocument)
	vehicle, _ := c.String(state.KeyRegVehicle)
	return domain.CourierProfile{
		AccountID:   accountID,
		FullName:    name,
		Phone:       phone,
		City:        city,
		DocumentRef: doc,
		Vehicle:     vehicle,
	}
}

func courierMenu(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		if norm(ev.Text) == "jobs" {
			reply, index, err := renderOpenJobs(ctx, d)
			if err != nil {
				return conversation.Decision{}, err
			}
			if index == nil {
				return conversation.Decision{
					Reply: textKB(reply, menuKeyboard(domain.RoleCourier)),
					Next:  state.CourierMenu,
				}, nil
			}
			return conversation.Decision{
				Reply: text(reply),
				Next:  state.CourierJobsList,
				Delta: session.Context{state.KeyJobIndex: index},
			}, nil
		}
		return conversation.Decision{
			Reply: textKB(menuText(domain.RoleCourier), menuKeyboard(domain.RoleCourier)),
			Next:  state.CourierMenu,
		}, nil
	}
}

func renderOpenJobs(ctx context.Context, d Deps) (string, map[string]any, error) {
	jobs, err := d.Deliveries.OpenJobs(ctx, "")
	if err != nil {
		return "", nil, err
	}
	if len(jobs) == 0 {
		return "No open jobs right now. Check back later.", nil, nil
	}
	lines := make([]string, 0, len(jobs))
	index := make(map[string]any, len(jobs))
	for i, j := range jobs {
		lines = append(lines, fmt.Sprintf("%s -> %s, fee %.2f", j.PickupAddress, j.DropoffAddress, j.Fee))
		index[fmt.Sprintf("%d", i+1)] = j.ID
	}
	return renderNumbered("Open jobs — reply with a number to take one, or 'menu':", lines), index, nil
}

func courierJobsList(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, _ *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if norm(ev.Text) == "menu" || isNegative(ev.Text) {
			return cancelToMenu(domain.RoleCourier, "jobs"), nil
		}

		index, _ := sctx.StringMap(state.KeyJobIndex)
		if _, raw, ok := parseSelection(ev.Text, index); ok {
			if id, ok := session.AsInt64(raw); ok {
				return conversation.Decision{
					Reply: textKB(fmt.Sprintf("Take job #%d?", id), confirmKeyboard()),
					Next:  state.CourierJobsConfirmTake,
					Delta: session.Context{state.KeyJobID: id},
				}, nil
			}
		}

		reply, freshIndex, err := renderOpenJobs(ctx, d)
		if err != nil {
			return conversation.Decision{}, err
		}
		if freshIndex == nil {
			return cancelToMenu(domain.RoleCourier, "jobs"), nil
		}
		return conversation.Decision{
			Reply: text(reply),
			Next:  state.CourierJobsList,
			Delta: session.Context{state.KeyJobIndex: freshIndex},
		}, nil
	}
}

func courierConfirmTake(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		switch {
		case isAffirmative(ev.Text):
			id, ok := sctx.Int64(state.KeyJobID)
			if !ok {
				return cancelToMenu(domain.RoleCourier, "jobs"), nil
			}
			res, err := d.Deliveries.Assign(ctx, id, acct.ID)
			if err != nil {
				return conversation.Decision{}, fmt.Errorf("assign job: %w", err)
			}
			if !res.OK {
				return conversation.Decision{
					Reply: textKB(res.Message, confirmKeyboard()),
					Next:  state.CourierJobsConfirmTake,
				}, nil
			}
			w, _ := state.WizardByName(domain.RoleCourier, "jobs")
			return conversation.Decision{
				Reply: textKB("Job is yours. Safe travels!", menuKeyboard(domain.RoleCourier)),
				Next:  state.CourierMenu,
				Purge: w.Keys,
			}, nil
		case isNegative(ev.Text):
			return cancelToMenu(domain.RoleCourier, "jobs"), nil
		default:
			id, _ := sctx.Int64(state.KeyJobID)
			return conversation.Decision{
				Reply: textKB(fmt.Sprintf("Take job #%d?", id), confirmKeyboard()),
				Next:  state.CourierJobsConfirmTake,
			}, nil
		}
	}
}
