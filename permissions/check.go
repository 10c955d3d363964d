package permissions

import "slices"

// Check is a boolean expression over set membership. Clauses that are set
// are combined with AND. A check with no clauses never matches.
type Check struct {
	AnyOf []string `json:"anyOf,omitempty" yaml:"anyOf,omitempty"` // at least one held
	AllOf []string `json:"allOf,omitempty" yaml:"allOf,omitempty"` // every one held
	Not   []string `json:"not,omitempty" yaml:"not,omitempty"`     // none held
}

// Is matches when name is held.
func Is(name string) Check { return Check{AnyOf: []string{name}} }

// Any matches when at least one of names is held.
func Any(names ...string) Check { return Check{AnyOf: names} }

// All matches when every one of names is held.
func All(names ...string) Check { return Check{AllOf: names} }

// None matches when none of names is held.
func None(names ...string) Check { return Check{Not: names} }

// IsEmpty reports whether the check has no clauses.
func (c Check) IsEmpty() bool {
	return len(c.AnyOf) == 0 && len(c.AllOf) == 0 && len(c.Not) == 0
}

// Matches evaluates the check against held.
func (c Check) Matches(held []string) bool {
	if c.IsEmpty() {
		return false
	}
	has := func(name string) bool { return slices.Contains(held, name) }

	if len(c.AnyOf) > 0 && !slices.ContainsFunc(c.AnyOf, has) {
		return false
	}
	for _, name := range c.AllOf {
		if !has(name) {
			return false
		}
	}
	return !slices.ContainsFunc(c.Not, has)
}
