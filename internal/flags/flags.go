// SPDX-License-Identifier: MIT

// Package flags provides the boolean feature-flag lookup consulted for
// diagnostic logging paths. Flags never gate correctness-affecting
// behavior in the core.
package flags

// Provider answers boolean flag lookups. Unknown flags are off.
type Provider interface {
	IsEnabled(name string) bool
}

// Static is a fixed in-memory Provider, handy for tests and defaults.
type Static map[string]bool

// IsEnabled reports whether the flag is set.
func (s Static) IsEnabled(name string) bool {
	return s[name]
}

// Disabled is a Provider with every flag off.
var Disabled = Static(nil)
