// Package locator defines the canonical string identity of a dialog state.
// A locator looks like a URL path: it starts and ends with a slash and
// contains lowercase segments of latin letters, digits, dashes and
// underscores, e.g. "/", "/welcome/" or "/orders/confirm/".
//
// The locator doubles as a routing key for the state registry and as the
// pointer persisted in the conversations table, so the grammar is enforced
// at both boundaries.
package locator

import (
	"fmt"
	"regexp"
)

// Root is the locator every registry must have a state registered for.
// A conversation with no restorable state always starts here.
const Root = "/"

var locatorRe = regexp.MustCompile(`^/(?:[a-z0-9_-]+/)*$`)

// InvalidError reports a locator string that violates the grammar.
type InvalidError struct {
	Locator string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid state locator %q: must match %s", e.Locator, locatorRe.String())
}

// Validate checks s against the locator grammar. The empty string is not a
// valid locator; callers that treat "" as "no state" must check for it
// before validating.
func Validate(s string) error {
	if !locatorRe.MatchString(s) {
		return &InvalidError{Locator: s}
	}
	return nil
}

// IsValid reports whether s matches the locator grammar.
func IsValid(s string) bool {
	return locatorRe.MatchString(s)
}
