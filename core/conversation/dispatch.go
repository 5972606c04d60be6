package conversation

import (
	"github.com/swiftline/courierbot/core/conversation/state"
	"github.com/swiftline/courierbot/core/domain"
)

// HandlerTable maps (role, state) to the handler processing messages in
// that state. Built once at startup and treated as immutable configuration.
type HandlerTable map[domain.Role]map[state.ID]HandlerFn

// Resolve returns the handler for a role's state.
func (t HandlerTable) Resolve(role domain.Role, id state.ID) (HandlerFn, bool) {
	byState, ok := t[role]
	if !ok {
		return nil, false
	}
	h, ok := byState[id]
	return h, ok
}

// KeywordTable maps normalized message text to a shortcut handler per
// role. Shortcuts apply only while the session is outside every wizard,
// so a field value that happens to match a keyword cannot hijack
// navigation mid-wizard.
type KeywordTable map[domain.Role]map[string]HandlerFn

// Resolve returns the shortcut handler for a role and normalized text.
func (t KeywordTable) Resolve(role domain.Role, text string) (HandlerFn, bool) {
	byText, ok := t[role]
	if !ok {
		return nil, false
	}
	h, ok := byText[text]
	return h, ok
}
