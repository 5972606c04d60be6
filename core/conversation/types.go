// Package conversation contains the engine that drives every inbound chat
// message through the role-scoped state machine: load session, dispatch to
// the state's handler, validate or force the resulting transition, persist,
// and hand the reply back to the transport.
package conversation

import (
	"context"

	"github.com/swiftline/courierbot/core/conversation/session"
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
	"github.com/swiftline/courierbot/core/transport"
)

// MessageEvent is the normalized inbound unit, one per engine invocation.
// Transports fill Identity; the engine resolves it to an account and uses
// the account id as the session key.
type MessageEvent struct {
	UserID   int64
	Platform transport.Platform
	Text     string
	MediaRef string
	Identity domain.PlatformIdentity
}

// Response is what the user gets back. Keyboard rows are plain labels;
// each transport renders them natively.
type Response struct {
	Text         string
	Keyboard     [][]string
	MediaRef     string
	MediaCaption string
}

// Decision is a handler's verdict: what to reply, where the conversation
// goes next, and how the context blob changes. Handlers never touch the
// session store themselves; the engine applies the decision.
//
// Next equal to the current state re-prompts without consulting the
// transition table. Purge lists wizard-owned keys to strip on hub return;
// a non-empty Purge or Force=true makes the engine write with Force
// instead of a validated transition. Replace, when non-nil, overwrites
// the context wholesale (resets). NewRole requests an auditable role
// change applied by the engine before the state write.
type Decision struct {
	Reply   Response
	Next    state.ID
	Delta   session.Context
	Purge   []string
	Force   bool
	Replace session.Context
	NewRole *domain.Role
}

// HandlerFn processes one message in one state. It is pure with respect
// to the session; side effects on external domain objects go through the
// collaborator ports and are bounded by the engine's timeout context.
type HandlerFn func(ctx context.Context, acct *domain.Account, ev MessageEvent, sctx session.Context) (Decision, error)

// EngineResult is returned to the ingress layer for delivery.
type EngineResult struct {
	Response Response
	NewState state.ID
}
