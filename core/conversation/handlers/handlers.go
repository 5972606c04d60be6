package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
)

// BuildTable assembles the immutable per-role dispatch table. Station-scoped
// roles are wrapped so every message re-verifies the backing station; losing
// the station downgrades the account to sender no matter which state it is in.
func BuildTable(d Deps) conversation.HandlerTable {
	return conversation.HandlerTable{
		domain.RoleSender:       senderHandlers(d),
		domain.RoleCourier:      courierHandlers(d),
		domain.RoleDispatcher:   guardStation(d, domain.RoleDispatcher, dispatcherHandlers(d)),
		domain.RoleStationOwner: guardStation(d, domain.RoleStationOwner, stationOwnerHandlers(d)),
	}
}

// BuildKeywords assembles the menu shortcut table. Shortcuts are only
// consulted outside wizards; the engine enforces that guard.
func BuildKeywords(d Deps) conversation.KeywordTable {
	return conversation.KeywordTable{
		domain.RoleSender: {
			"menu": menuDecisionFn(domain.RoleSender),
		},
		domain.RoleCourier: {
			"menu": menuDecisionFn(domain.RoleCourier),
		},
		domain.RoleDispatcher: {
			"menu": withStationCheck(d, domain.RoleDispatcher, menuDecisionFn(domain.RoleDispatcher)),
		},
		domain.RoleStationOwner: {
			"menu": withStationCheck(d, domain.RoleStationOwner, menuDecisionFn(domain.RoleStationOwner)),
		},
	}
}

// BuildFallbacks assembles per-role unknown-state handlers. Each logs the
// anomaly and force-resets to the role's menu so the user is never left
// without a response.
func BuildFallbacks(d Deps) map[domain.Role]conversation.HandlerFn {
	out := make(map[domain.Role]conversation.HandlerFn, 4)
	for _, role := range []domain.Role{
		domain.RoleSender, domain.RoleCourier, domain.RoleDispatcher, domain.RoleStationOwner,
	} {
		out[role] = unknownStateHandler(d, role)
	}
	return out
}

func unknownStateHandler(d Deps, role domain.Role) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, _ conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		logger.HND.Warn("resetting corrupted session",
			slog.String("event", "handler.unknown_state"),
			slog.String("role", string(role)),
			slog.Int64("user_id", acct.ID),
		)
		// Station-scoped roles verify their station still exists before
		// landing back at their menu.
		if dec, ok := recoverLostStation(ctx, d, role, acct); ok {
			return dec, nil
		}
		return conversation.Decision{
			Reply:   textKB(menuText(role), menuKeyboard(role)),
			Next:    state.Menu(role),
			Force:   true,
			Replace: session.Context{},
		}, nil
	}
}

func menuDecisionFn(role domain.Role) conversation.HandlerFn {
	return func(_ context.Context, _ *domain.Account, _ conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		return conversation.Decision{
			Reply: textKB(menuText(role), menuKeyboard(role)),
			Next:  state.Menu(role),
			Force: true,
		}, nil
	}
}

func menuText(role domain.Role) string {
	switch role {
	case domain.RoleSender:
		return "What would you like to do?"
	case domain.RoleCourier:
		return "Courier menu."
	case domain.RoleDispatcher:
		return "Dispatcher menu."
	case domain.RoleStationOwner:
		return "Station menu."
	}
	return "Menu."
}

func menuKeyboard(role domain.Role) [][]string {
	switch role {
	case domain.RoleSender:
		return [][]string{
			{"new delivery", "my shipments"},
			{"become courier"},
		}
	case domain.RoleCourier:
		return [][]string{{"jobs"}}
	case domain.RoleDispatcher:
		return [][]string{
			{"new shipment", "manual charge"},
			{"active shipments"},
		}
	case domain.RoleStationOwner:
		return [][]string{
			{"add dispatcher", "remove dispatcher"},
			{"add owner", "remove owner"},
			{"blacklist add", "blacklist remove"},
		}
	}
	return nil
}

// guardStation wraps a station-scoped role's handlers so the backing
// station is re-verified on every message, not just on action paths.
func guardStation(d Deps, role domain.Role, m map[state.ID]conversation.HandlerFn) map[state.ID]conversation.HandlerFn {
	for id, fn := range m {
		m[id] = withStationCheck(d, role, fn)
	}
	return m
}

func withStationCheck(d Deps, role domain.Role, fn conversation.HandlerFn) conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		if dec, ok := recoverLostStation(ctx, d, role, acct); ok {
			return dec, nil
		}
		return fn(ctx, acct, ev, sctx)
	}
}

// recoverLostStation downgrades dispatchers and station owners whose
// backing station disappeared mid-flow. Returns ok=false when the role is
// not station-scoped, the station is still there, or the lookup failed for
// a reason other than the station being gone.
func recoverLostStation(ctx context.Context, d Deps, role domain.Role, acct *domain.Account) (conversation.Decision, bool) {
	var err error
	switch role {
	case domain.RoleDispatcher:
		_, err = d.Stations.ByDispatcher(ctx, acct.ID)
	case domain.RoleStationOwner:
		_, err = d.Stations.ByOwner(ctx, acct.ID)
	default:
		return conversation.Decision{}, false
	}
	if !errors.Is(err, domain.ErrStationNotFound) {
		return conversation.Decision{}, false
	}

	logger.HND.Warn("station gone, downgrading to sender",
		slog.String("event", "handler.station_lost"),
		slog.String("role", string(role)),
		slog.Int64("user_id", acct.ID),
		slog.String("err", err.Error()),
	)
	sender := domain.RoleSender
	return conversation.Decision{
		Reply:   textKB("Your station is no longer available. Switching you to sender mode.", menuKeyboard(sender)),
		Next:    state.SenderMenu,
		Force:   true,
		Replace: session.Context{},
		NewRole: &sender,
	}, true
}
