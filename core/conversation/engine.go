package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/logger"
)

// Options wires an Engine.
type Options struct {
	Store     session.Store
	Directory domain.Directory

	// Handlers is the per-role dispatch table; Onboarding runs while the
	// account has no role yet; Fallbacks recover unknown/corrupted states.
	Handlers   HandlerTable
	Onboarding HandlerFn
	Fallbacks  map[domain.Role]HandlerFn
	Keywords   KeywordTable

	// SideEffectTimeout bounds handler calls into collaborators so a hung
	// external service cannot keep the per-user lock held indefinitely.
	SideEffectTimeout time.Duration
}

// Engine orchestrates one inbound message at a time per (user, platform)
// pair. Different pairs proceed in parallel.
type Engine struct {
	store      session.Store
	directory  domain.Directory
	handlers   HandlerTable
	onboarding HandlerFn
	fallbacks  map[domain.Role]HandlerFn
	keywords   KeywordTable
	locks      *session.KeyedLock
	timeout    time.Duration
}

// NewEngine validates options and constructs an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: session store is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("engine: account directory is required")
	}
	if opts.Onboarding == nil {
		return nil, fmt.Errorf("engine: onboarding handler is required")
	}
	timeout := opts.SideEffectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		store:      opts.Store,
		directory:  opts.Directory,
		handlers:   opts.Handlers,
		onboarding: opts.Onboarding,
		fallbacks:  opts.Fallbacks,
		keywords:   opts.Keywords,
		locks:      session.NewKeyedLock(),
		timeout:    timeout,
	}, nil
}

// LockWaits exposes the per-pair lock contention counter.
func (e *Engine) LockWaits() int64 {
	return e.locks.Waits()
}

// HandleMessage is the single entry point ingress code calls once per
// normalized inbound message. Conversational-logic failures are returned
// as data in the response; only storage failures propagate as errors.
func (e *Engine) HandleMessage(ctx context.Context, ev MessageEvent) (EngineResult, error) {
	start := time.Now()
	rid := uuid.NewString()[:8]
	ctx = logger.WithRID(ctx, rid)

	acct, err := e.directory.ResolveOrCreate(ctx, ev.Identity)
	if err != nil {
		return EngineResult{}, fmt.Errorf("resolve account: %w", err)
	}
	ev.UserID = acct.ID
	ctx = logger.WithMessageMeta(ctx, acct.ID, string(ev.Platform))

	// All processing for one (user, platform) pair is serialized; two
	// messages from the same user must not read-modify-write concurrently.
	e.locks.Lock(acct.ID, ev.Platform)
	defer e.locks.Unlock(acct.ID, ev.Platform)

	sess, err := e.store.GetOrCreate(ctx, acct.ID, ev.Platform)
	if err != nil {
		return EngineResult{}, fmt.Errorf("load session: %w", err)
	}

	// Role is a snapshot taken once per invocation; handlers request role
	// changes explicitly through Decision.NewRole.
	role := acct.Role

	handler, handlerName := e.selectHandler(role, sess.Current, ev.Text)

	hctx, cancel := context.WithTimeout(ctx, e.timeout)
	decision, err := handler(hctx, acct, ev, sess.Context.Clone())
	cancel()
	if err != nil {
		// A handler failure must not leave the user without a response;
		// reset to a safe state and report what happened.
		logger.ENG.Error("handler failed",
			slog.String("event", "engine.handle"),
			slog.String("status", "error"),
			slog.String("rid", rid),
			slog.Int64("user_id", acct.ID),
			slog.String("platform", string(ev.Platform)),
			slog.String("state", string(sess.Current)),
			slog.String("handler", handlerName),
			slog.String("err", err.Error()),
		)
		decision = e.recoverDecision(role)
	}

	if decision.NewRole != nil {
		if err := e.directory.SetRole(ctx, acct.ID, *decision.NewRole); err != nil {
			return EngineResult{}, fmt.Errorf("set role: %w", err)
		}
		logger.ENG.Info("role changed",
			slog.String("event", "engine.role_change"),
			slog.String("rid", rid),
			slog.Int64("user_id", acct.ID),
			slog.String("from", string(role)),
			slog.String("to", string(*decision.NewRole)),
		)
		role = *decision.NewRole
		if decision.Next == "" {
			decision.Next = state.Entry(role)
		}
		// A role switch invalidates the old role's state string.
		decision.Force = true
	}

	finalState, err := e.persist(ctx, role, sess, decision)
	if err != nil {
		return EngineResult{}, err
	}

	logger.ENG.Debug("message handled",
		slog.String("event", "engine.handle"),
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int64("user_id", acct.ID),
		slog.String("platform", string(ev.Platform)),
		slog.String("handler", handlerName),
		slog.String("from", string(sess.Current)),
		slog.String("to", string(finalState)),
		slog.Duration("duration", logger.Took(start)),
	)

	return EngineResult{Response: decision.Reply, NewState: finalState}, nil
}

// selectHandler picks the handler for this message: onboarding before a
// role exists, the unknown-state fallback for corrupted states, keyword
// shortcuts outside wizards, the state's own handler otherwise.
func (e *Engine) selectHandler(role domain.Role, current state.ID, text string) (HandlerFn, string) {
	if !role.Valid() {
		return e.onboarding, "onboarding"
	}

	if !state.Known(role, current) {
		logger.ENG.Warn("unknown state, falling back",
			slog.String("event", "engine.unknown_state"),
			slog.String("role", string(role)),
			slog.String("state", string(current)),
		)
		return e.fallback(role), "unknown_state"
	}

	if _, inWizard := state.WizardOf(role, current); !inWizard {
		if h, ok := e.keywords.Resolve(role, normalize(text)); ok {
			return h, "keyword"
		}
	}

	if h, ok := e.handlers.Resolve(role, current); ok {
		return h, string(current)
	}

	logger.ENG.Warn("state without handler, falling back",
		slog.String("event", "engine.unmapped_state"),
		slog.String("role", string(role)),
		slog.String("state", string(current)),
	)
	return e.fallback(role), "unmapped_state"
}

func (e *Engine) fallback(role domain.Role) HandlerFn {
	if h, ok := e.fallbacks[role]; ok {
		return h
	}
	// Last resort when no role fallback was wired.
	return func(context.Context, *domain.Account, MessageEvent, session.Context) (Decision, error) {
		return Decision{
			Reply: Response{Text: "Something went wrong, starting over."},
			Next:  state.Menu(role),
			Force: true,
		}, nil
	}
}

func (e *Engine) recoverDecision(role domain.Role) Decision {
	next := state.Menu(role)
	if !role.Valid() {
		next = state.Initial
	}
	// The failed flow's context is untrustworthy; the hub return starts clean.
	return Decision{
		Reply:   Response{Text: "Something went wrong, please try again."},
		Next:    next,
		Force:   true,
		Replace: session.Context{},
	}
}

// persist applies a decision to the session store and returns the state
// the session ended up in.
func (e *Engine) persist(ctx context.Context, role domain.Role, sess *session.Session, d Decision) (state.ID, error) {
	target := d.Next
	if target == "" {
		target = sess.Current
	}

	forced := d.Force || len(d.Purge) > 0 || d.Replace != nil
	if forced {
		replace := d.Replace
		if replace == nil {
			replace = sess.Context.Merge(d.Delta).Without(d.Purge)
		}
		if err := e.store.Force(ctx, sess.UserID, sess.Platform, target, replace); err != nil {
			return "", fmt.Errorf("force session: %w", err)
		}
		return target, nil
	}

	if target == sess.Current {
		// Self-loop: re-prompt without consulting the table, stash any
		// delta the handler wants cached for the next step.
		for k, v := range d.Delta {
			if err := e.store.UpdateContext(ctx, sess.UserID, sess.Platform, k, v); err != nil {
				return "", fmt.Errorf("update context: %w", err)
			}
		}
		return target, nil
	}

	ok, err := e.store.TransitionTo(ctx, sess.UserID, sess.Platform, role, target, d.Delta)
	if err != nil {
		return "", fmt.Errorf("transition session: %w", err)
	}
	if !ok {
		// Expected, non-fatal: the edge is absent, state stays put.
		logger.ENG.Warn("transition rejected",
			slog.String("event", "engine.transition"),
			slog.String("status", "skip"),
			slog.String("role", string(role)),
			slog.String("from", string(sess.Current)),
			slog.String("to", string(target)),
		)
		return sess.Current, nil
	}
	return target, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
