package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/swiftline/courierbot/core/conversation"
	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
)

// field is one linear wizard step: one message consumed as one context key.
type field struct {
	state  state.ID
	key    string
	prompt string
	// media steps consume the message's media reference instead of text
	media    bool
	validate func(string) (any, error)
}

// wizardDef drives the shared wizard runtime: a linear chain of fields
// ending in a confirm step that commits a domain side effect from the
// accumulated context and purges the wizard's keys on the way back to
// the menu.
type wizardDef struct {
	wizard  *state.Wizard
	role    domain.Role
	fields  []field
	confirm state.ID
	summary func(c session.Context) string
	commit  func(ctx context.Context, acct *domain.Account, c session.Context) (domain.Result, error)
	done    string
}

// install generates one handler per field plus the confirm handler into m.
func (w *wizardDef) install(m map[state.ID]conversation.HandlerFn) {
	for i := range w.fields {
		f := w.fields[i]
		next := w.confirm
		nextPrompt := ""
		if i+1 < len(w.fields) {
			next = w.fields[i+1].state
			nextPrompt = w.fields[i+1].prompt
		}
		m[f.state] = w.fieldHandler(f, next, nextPrompt)
	}
	m[w.confirm] = w.confirmHandler()
}

func (w *wizardDef) fieldHandler(f field, next state.ID, nextPrompt string) conversation.HandlerFn {
	return func(_ context.Context, _ *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
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
			// Local validation failure: re-prompt, no state change.
			return conversation.Decision{
				Reply: text(err.Error() + "\n" + f.prompt),
				Next:  f.state,
			}, nil
		}

		delta := session.Context{f.key: value}
		if next == w.confirm {
			return conversation.Decision{
				Reply: textKB(w.summary(sctx.Merge(delta)), confirmKeyboard()),
				Next:  w.confirm,
				Delta: delta,
			}, nil
		}
		return conversation.Decision{
			Reply: text(nextPrompt),
			Next:  next,
			Delta: delta,
		}, nil
	}
}

func (w *wizardDef) confirmHandler() conversation.HandlerFn {
	return func(ctx context.Context, acct *domain.Account, ev conversation.MessageEvent, sctx session.Context) (conversation.Decision, error) {
		switch {
		case isAffirmative(ev.Text):
			res, err := w.commit(ctx, acct, sctx)
			if err != nil {
				return conversation.Decision{}, fmt.Errorf("%s commit: %w", w.wizard.Name, err)
			}
			if !res.OK {
				// Side-effect failure: relay the message, stay at confirm so
				// the user can retry or cancel explicitly.
				logger.HND.Warn("wizard commit rejected",
					slog.String("event", "wizard.commit"),
					slog.String("status", "fail"),
					slog.String("wizard", w.wizard.Name),
					slog.Int64("user_id", acct.ID),
				)
				return conversation.Decision{
					Reply: textKB(res.Message, confirmKeyboard()),
					Next:  w.confirm,
				}, nil
			}
			return conversation.Decision{
				Reply: textKB(w.done, menuKeyboard(w.role)),
				Next:  state.Menu(w.role),
				Purge: w.wizard.Keys,
			}, nil

		case isNegative(ev.Text):
			return conversation.Decision{
				Reply: textKB("Cancelled.", menuKeyboard(w.role)),
				Next:  state.Menu(w.role),
				Purge: w.wizard.Keys,
			}, nil

		default:
			return conversation.Decision{
				Reply: textKB(w.summary(sctx), confirmKeyboard()),
				Next:  w.confirm,
			}, nil
		}
	}
}

// cancelToMenu is the shared cancel decision for list/selection flows.
func cancelToMenu(role domain.Role, wizardName string) conversation.Decision {
	keys := []string(nil)
	if w, ok := state.WizardByName(role, wizardName); ok {
		keys = w.Keys
	}
	return conversation.Decision{
		Reply: textKB("Back to menu.", menuKeyboard(role)),
		Next:  state.Menu(role),
		Purge: keys,
	}
}
