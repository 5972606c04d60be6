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

func stationOwnerHandlers(d Deps) map[state.ID]conversation.HandlerFn {
	m := make(map[state.ID]conversation.HandlerFn)

	flows := []removalFlow{
		removeDispatcherFlow(d),
		removeOwnerFlow(d),
		blacklistRemoveFlow(d),
	}

	m[state.StationOwnerMenu] = stationOwnerMenu(d, flows)
	for i := range flows {
		flows[i].install(d, m)
	}

	addMemberWizard(d, "add_dispatcher",
		state.StationOwnerAddDispatcherCollectPhone,
		state.StationOwnerAddDispatcherConfirm,
		"Phone number of the new dispatcher?",
		"New dispatcher",
		"Dispatcher added.",
		d.Stations.AddDispatcher,
	).install(m)

	addMemberWizard(d, "add_owner",
		state.StationOwnerAddOwnerCollectPhone,
		state.StationOwnerAddOwnerConfirm,
		"Phone number of the new owner?",
		"New owner",
		"Owner added.",
		d.Stations.AddOwner,
	).install(m)

	addMemberWizard(d, "blacklist_add",
		state.StationOwnerBlacklistAddCollectPhone,
		state.StationOwnerBlacklistAddConfirm,
		"Phone number to blacklist?",
		"Blacklist entry",
		"Number blacklisted.",
		d.Blacklist.Add,
	).install(m)

	return m
}

func stationOwnerMenu(d Deps, flows []removalFlow) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		choice := norm(ev.Text)

		for i := range flows {
			if choice != flows[i].menuChoice {
				continue
			}
			station, dec, ok := requireStation(ctx, d, domain.RoleStationOwner, acct)
			if !ok {
				return dec, nil
			}
			return flows[i].enter(ctx, station.ID)
		}

		switch choice {
		case "add dispatcher":
			return enterAddMember(ctx, d, acct, "Phone number of the new dispatcher?",
				state.StationOwnerAddDispatcherCollectPhone)
		case "add owner":
			return enterAddMember(ctx, d, acct, "Phone number of the new owner?",
				state.StationOwnerAddOwnerCollectPhone)
		case "blacklist add":
			return enterAddMember(ctx, d, acct, "Phone number to blacklist?",
				state.StationOwnerBlacklistAddCollectPhone)
		default:
			return conversation.Decision{
				Reply: textKB(menuText(domain.RoleStationOwner), menuKeyboard(domain.RoleStationOwner)),
				Next:  state.StationOwnerMenu,
			}, nil
		}
	}
}

func enterAddMember(ctx context.Context, d Deps, acct *domain.Account, prompt string, next state.ID) (conversation.Decision, error) {
	if _, dec, ok := requireStation(ctx, d, domain.RoleStationOwner, acct); !ok {
		return dec, nil
	}
	return conversation.Decision{
		Reply: text(prompt),
		Next:  next,
	}, nil
}

// addMemberWizard covers the three single-phone admission flows: a phone
// collection step and a confirm step committing against the owner's station.
func addMemberWizard(
	d Deps,
	name string,
	collect, confirm state.ID,
	prompt, summaryLabel, done string,
	commit func(ctx context.Context, stationID int64, phone string) (domain.Result, error),
) *wizardDef {
	w, _ := state.WizardByName(domain.RoleStationOwner, name)
	return &wizardDef{
		wizard: w,
		role:   domain.RoleStationOwner,
		fields: []field{
			{state: collect, key: state.KeyMemberPhone, prompt: prompt, validate: validatePhone},
		},
		confirm: confirm,
		summary: func(c session.Context) string {
			phone, _ := c.String(state.KeyMemberPhone)
			return fmt.Sprintf("%s: %s\n\nConfirm?", summaryLabel, phone)
		},
		commit: func(ctx context.Context, acct *domain.Account, c session.Context) (domain.Result, error) {
			station, err := d.Stations.ByOwner(ctx, acct.ID)
			if errors.Is(err, domain.ErrStationNotFound) {
				return domain.Result{OK: false, Message: "Your station is no longer available."}, nil
			}
			if err != nil {
				return domain.Result{}, err
			}
			phone, _ := c.String(state.KeyMemberPhone)
			return commit(ctx, station.ID, phone)
		},
		done: done,
	}
}

// removalFlow drives the list-select-confirm removal pattern shared by
// dispatcher removal, owner removal and blacklist removal.
type removalFlow struct {
	name         string
	menuChoice   string
	selectState  state.ID
	confirmState state.ID
	header       string
	empty        string
	done         string
	list         func(ctx context.Context, stationID int64) (lines []string, values, labels map[string]any, err error)
	commit       func(ctx context.Context, stationID int64, raw any) (domain.Result, error)
}

func (f *removalFlow) install(d Deps, m map[state.ID]conversation.HandlerFn) {
	m[f.selectState] = f.selectHandler(d)
	m[f.confirmState] = f.confirmHandler(d)
}

// enter renders the numbered list and moves into the select step. An empty
// list short-circuits back to the menu.
func (f *removalFlow) enter(ctx context.Context, stationID int64) (conversation.Decision, error) {
	lines, values, labels, err := f.list(ctx, stationID)
	if err != nil {
		return conversation.Decision{}, err
	}
	if len(lines) == 0 {
		return conversation.Decision{
			Reply: textKB(f.empty, menuKeyboard(domain.RoleStationOwner)),
			Next:  state.StationOwnerMenu,
		}, nil
	}
	return conversation.Decision{
		Reply: text(renderNumbered(f.header, lines)),
		Next:  f.selectState,
		Delta: session.Context{
			state.KeyRemoveIndex:  values,
			state.KeyRemoveLabels: labels,
		},
	}, nil
}

func (f *removalFlow) selectHandler(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if isNegative(ev.Text) || norm(ev.Text) == "menu" {
			return cancelToMenu(domain.RoleStationOwner, f.name), nil
		}

		values, _ := sctx.StringMap(state.KeyRemoveIndex)
		labels, _ := sctx.StringMap(state.KeyRemoveLabels)
		if key, raw, ok := parseSelection(ev.Text, values); ok {
			label, _ := labels[key].(string)
			return conversation.Decision{
				Reply: textKB(fmt.Sprintf("Remove %s?", label), confirmKeyboard()),
				Next:  f.confirmState,
				Delta: session.Context{
					state.KeyRemoveID:    raw,
					state.KeyRemoveLabel: label,
				},
			}, nil
		}

		// Stale or out-of-range selection: re-render a fresh list.
		station, dec, ok := requireStation(ctx, d, domain.RoleStationOwner, acct)
		if !ok {
			return dec, nil
		}
		return f.enter(ctx, station.ID)
	}
}

func (f *removalFlow) confirmHandler(d Deps) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		keys := []string(nil)
		if w, ok := state.WizardByName(domain.RoleStationOwner, f.name); ok {
			keys = w.Keys
		}

		switch {
		case isAffirmative(ev.Text):
			station, dec, ok := requireStation(ctx, d, domain.RoleStationOwner, acct)
			if !ok {
				return dec, nil
			}
			res, err := f.commit(ctx, station.ID, sctx[state.KeyRemoveID])
			if err != nil {
				return conversation.Decision{}, fmt.Errorf("%s commit: %w", f.name, err)
			}
			reply := f.done
			if !res.OK {
				reply = res.Message
			}
			return conversation.Decision{
				Reply: textKB(reply, menuKeyboard(domain.RoleStationOwner)),
				Next:  state.StationOwnerMenu,
				Purge: keys,
			}, nil

		case isNegative(ev.Text):
			return conversation.Decision{
				Reply: textKB("Cancelled.", menuKeyboard(domain.RoleStationOwner)),
				Next:  state.StationOwnerMenu,
				Purge: keys,
			}, nil

		default:
			label, _ := sctx.String(state.KeyRemoveLabel)
			return conversation.Decision{
				Reply: textKB(fmt.Sprintf("Remove %s?", label), confirmKeyboard()),
				Next:  f.confirmState,
			}, nil
		}
	}
}

func removeDispatcherFlow(d Deps) removalFlow {
	return removalFlow{
		name:         "remove_dispatcher",
		menuChoice:   "remove dispatcher",
		selectState:  state.StationOwnerRemoveDispatcherSelect,
		confirmState: state.StationOwnerRemoveDispatcherConfirm,
		header:       "Pick a dispatcher to remove, or 'cancel':",
		empty:        "No dispatchers at your station.",
		done:         "Dispatcher removed.",
		list: func(ctx context.Context, stationID int64) ([]string, map[string]any, map[string]any, error) {
			return renderAccountList(d.Stations.Dispatchers, ctx, stationID)
		},
		commit: func(ctx context.Context, stationID int64, raw any) (domain.Result, error) {
			id, ok := session.AsInt64(raw)
			if !ok {
				return domain.Result{OK: false, Message: "That entry is no longer available."}, nil
			}
			return d.Stations.RemoveDispatcher(ctx, stationID, id)
		},
	}
}

func removeOwnerFlow(d Deps) removalFlow {
	return removalFlow{
		name:         "remove_owner",
		menuChoice:   "remove owner",
		selectState:  state.StationOwnerRemoveOwnerSelect,
		confirmState: state.StationOwnerRemoveOwnerConfirm,
		header:       "Pick an owner to remove, or 'cancel':",
		empty:        "No other owners at your station.",
		done:         "Owner removed.",
		list: func(ctx context.Context, stationID int64) ([]string, map[string]any, map[string]any, error) {
			return renderAccountList(d.Stations.Owners, ctx, stationID)
		},
		commit: func(ctx context.Context, stationID int64, raw any) (domain.Result, error) {
			id, ok := session.AsInt64(raw)
			if !ok {
				return domain.Result{OK: false, Message: "That entry is no longer available."}, nil
			}
			return d.Stations.RemoveOwner(ctx, stationID, id)
		},
	}
}

func blacklistRemoveFlow(d Deps) removalFlow {
	return removalFlow{
		name:         "blacklist_remove",
		menuChoice:   "blacklist remove",
		selectState:  state.StationOwnerBlacklistRemoveSelect,
		confirmState: state.StationOwnerBlacklistRemoveConfirm,
		header:       "Pick a number to unblacklist, or 'cancel':",
		empty:        "Blacklist is empty.",
		done:         "Number removed from blacklist.",
		list: func(ctx context.Context, stationID int64) ([]string, map[string]any, map[string]any, error) {
			entries, err := d.Blacklist.Entries(ctx, stationID)
			if err != nil {
				return nil, nil, nil, err
			}
			values := make(map[string]any, len(entries))
			labels := make(map[string]any, len(entries))
			for i, phone := range entries {
				key := fmt.Sprintf("%d", i+1)
				values[key] = phone
				labels[key] = phone
			}
			return entries, values, labels, nil
		},
		commit: func(ctx context.Context, stationID int64, raw any) (domain.Result, error) {
			phone, ok := raw.(string)
			if !ok {
				return domain.Result{OK: false, Message: "That entry is no longer available."}, nil
			}
			return d.Blacklist.Remove(ctx, stationID, phone)
		},
	}
}

func renderAccountList(
	fetch func(ctx context.Context, stationID int64) ([]domain.Account, error),
	ctx context.Context,
	stationID int64,
) ([]string, map[string]any, map[string]any, error) {
	accounts, err := fetch(ctx, stationID)
	if err != nil {
		return nil, nil, nil, err
	}
	lines := make([]string, 0, len(accounts))
	values := make(map[string]any, len(accounts))
	labels := make(map[string]any, len(accounts))
	for i, a := range accounts {
		key := fmt.Sprintf("%d", i+1)
		lines = append(lines, fmt.Sprintf("%s (%s)", a.Name, a.Phone))
		values[key] = a.ID
		labels[key] = a.Name
	}
	return lines, values, labels, nil
}
