package dialog

import "fmt"

// UnknownLocatorError reports a locator no state variant is registered for.
type UnknownLocatorError struct {
	Locator string
}

func (e *UnknownLocatorError) Error() string {
	return fmt.Sprintf("no state registered for locator %q", e.Locator)
}

// ValidationError wraps a state builder's own field validation failure.
type ValidationError struct {
	Locator string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid params for state %q: %v", e.Locator, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
