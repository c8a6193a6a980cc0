// Package kw forwards bags of named arguments to callees that only declare
// part of them.
//
// A callee declares its keyword names through the Describer interface, an
// options struct as its final parameter, or accepts any name by taking a Bag
// last. ApplicableSubset computes what a callee accepts; Claim checks that
// every entry of a bag is accepted by at least one callee before anything is
// dispatched.
package kw

import "sort"

// Bag is a set of named arguments. Bags are never mutated by this package;
// filtering always builds a new Bag.
type Bag map[string]any

// Keys returns the bag's keys in sorted order.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (b Bag) Has(key string) bool {
	_, ok := b[key]
	return ok
}
