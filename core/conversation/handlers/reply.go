package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/swiftline/courierbot/core/conversation"
)

// Confirmation tokens. Anything else at a confirm step re-renders the prompt.
var (
	affirmatives = map[string]struct{}{"yes": {}, "y": {}, "confirm": {}, "ok": {}}
	negatives    = map[string]struct{}{"no": {}, "n": {}, "cancel": {}}
)

func isAffirmative(text string) bool {
	_, ok := affirmatives[norm(text)]
	return ok
}

func isNegative(text string) bool {
	_, ok := negatives[norm(text)]
	return ok
}

func norm(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func confirmKeyboard() [][]string {
	return [][]string{{"yes", "no"}}
}

func text(s string) conversation.Response {
	return conversation.Response{Text: s}
}

func textKB(s string, kb [][]string) conversation.Response {
	return conversation.Response{Text: s, Keyboard: kb}
}

// renderNumbered renders a 1-based list the user selects from by number.
func renderNumbered(header string, lines []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, line := range lines {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, line))
	}
	return b.String()
}

// parseSelection extracts a 1-based index from free text like "3" or
// "remove 3" and resolves it against the stored index map. Returns false
// for stale or out-of-range selections.
func parseSelection(textIn string, index map[string]any) (string, any, bool) {
	fields := strings.Fields(norm(textIn))
	if len(fields) == 0 {
		return "", nil, false
	}
	last := fields[len(fields)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return "", nil, false
	}
	v, ok := index[last]
	if !ok {
		return "", nil, false
	}
	return last, v, true
}

func validateNonEmpty(label string) func(string) (any, error) {
	return func(in string) (any, error) {
		v := strings.TrimSpace(in)
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", label)
		}
		return v, nil
	}
}

func validateMinLen(label string, min int) func(string) (any, error) {
	return func(in string) (any, error) {
		v := strings.TrimSpace(in)
		if len([]rune(v)) < min {
			return nil, fmt.Errorf("%s must be at least %d characters", label, min)
		}
		return v, nil
	}
}

func validatePhone(in string) (any, error) {
	v := strings.TrimSpace(in)
	digits := 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return nil, fmt.Errorf("phone number may contain only digits, +, -, ( )")
		}
	}
	if digits < 7 {
		return nil, fmt.Errorf("phone number looks too short")
	}
	return v, nil
}

func validateAmount(in string) (any, error) {
	v := strings.TrimSpace(strings.ReplaceAll(in, ",", "."))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return nil, fmt.Errorf("enter a positive number")
	}
	return f, nil
}
