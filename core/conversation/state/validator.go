package state

import "github.com/swiftline/courierbot/core/domain"

// IsValid reports whether moving from current to target is permitted by
// the role's transition table. Staying in place is always permitted.
// Unknown current states fail closed so the engine can route the session
// through its recovery path instead of crashing the conversation.
func IsValid(role domain.Role, current, target ID) bool {
	if current == target {
		return true
	}
	table, ok := transitions[role]
	if !ok {
		return false
	}
	targets, ok := table[current]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}
