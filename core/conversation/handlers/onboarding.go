package handlers

import (
	"context"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

const welcomeText = "Welcome to the delivery service!\n" +
	"Reply 'send' to ship packages or 'courier' to deliver them."

// Onboarding handles every message while the account has no role yet.
// The session sits at the shared INITIAL sentinel until a role is picked;
// the engine then forces the transition into the new role's entry state.
func Onboarding(d Deps) conversation.HandlerFn {
	return func(_ context.Context, _ *domain.Account, ev conversation.MessageEvent, _ session.Context) (conversation.Decision, error) {
		switch norm(ev.Text) {
		case "send", "sender":
			role := domain.RoleSender
			return conversation.Decision{
				Reply:   textKB("You're set up as a sender.\n"+menuText(role), menuKeyboard(role)),
				Next:    state.SenderMenu,
				NewRole: &role,
			}, nil
		case "courier", "deliver":
			role := domain.RoleCourier
			return conversation.Decision{
				Reply:   text("Let's register you as a courier.\nWhat is your full name?"),
				Next:    state.CourierRegisterCollectName,
				NewRole: &role,
			}, nil
		default:
			return conversation.Decision{
				Reply: textKB(welcomeText, [][]string{{"send", "courier"}}),
				Next:  state.Initial,
			}, nil
		}
	}
}
