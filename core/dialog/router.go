package dialog

import (
	"fmt"
	"sort"

	"github.com/m3rciful/dialogbot/core/locator"
)

// Builder constructs a state variant from persisted params, performing the
// variant's own field validation.
type Builder func(params Params) (State, error)

// Registry maps state locators to builders. It is populated once at startup
// and read-only afterwards, so it needs no locking.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register associates a locator with a state builder. Registering an
// invalid locator or the same locator twice is a configuration error.
func (r *Registry) Register(loc string, build Builder) error {
	if build == nil {
		return fmt.Errorf("register %q: nil state builder", loc)
	}
	if err := locator.Validate(loc); err != nil {
		return fmt.Errorf("register state: %w", err)
	}
	if _, exists := r.builders[loc]; exists {
		return fmt.Errorf("state already registered for locator %q", loc)
	}
	r.builders[loc] = build
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(loc string, build Builder) {
	if err := r.Register(loc, build); err != nil {
		panic(err)
	}
}

// Has reports whether a builder is registered for loc.
func (r *Registry) Has(loc string) bool {
	_, ok := r.builders[loc]
	return ok
}

// Locators returns registered locators in sorted order, for diagnostics.
func (r *Registry) Locators() []string {
	out := make([]string, 0, len(r.builders))
	for loc := range r.builders {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Locate constructs the state registered for loc from params. It fails
// with *UnknownLocatorError when nothing is registered and with
// *ValidationError when params do not satisfy the variant's field
// contract. Those are the only two failure classes.
func (r *Registry) Locate(loc string, params Params) (State, error) {
	build, ok := r.builders[loc]
	if !ok {
		return nil, &UnknownLocatorError{Locator: loc}
	}
	st, err := build(params)
	if err != nil {
		if verr, ok := err.(*ValidationError); ok {
			return nil, verr
		}
		return nil, &ValidationError{Locator: loc, Err: err}
	}
	if st == nil {
		return nil, &ValidationError{Locator: loc, Err: fmt.Errorf("builder returned no state")}
	}
	return st, nil
}
