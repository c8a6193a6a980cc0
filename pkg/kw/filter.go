package kw

import "errors"

// Filter restricts bag to the names ps accepts. A set with VarKeyword gets
// bag itself back.
func Filter(ps ParameterSet, bag Bag) Bag {
	if ps.VarKeyword {
		return bag
	}
	out := make(Bag, len(bag))
	for k, v := range bag {
		if ps.declares(k) {
			out[k] = v
		}
	}
	return out
}

// ApplicableSubset returns the part of bag that callee accepts without error.
func ApplicableSubset(callee any, bag Bag) (Bag, error) {
	ps, err := ParametersOf(callee)
	if err != nil {
		return nil, err
	}
	return Filter(ps, bag), nil
}

// Unclaimed returns, sorted, the keys of bag that none of sets accepts.
func Unclaimed(bag Bag, sets ...ParameterSet) []string {
	var out []string
	for _, k := range bag.Keys() {
		claimed := false
		for _, ps := range sets {
			if ps.Accepts(k) {
				claimed = true
				break
			}
		}
		if !claimed {
			out = append(out, k)
		}
	}
	return out
}

// Claim checks that every key of bag is accepted by at least one of callees
// and reports the first unclaimed key (in sort order) otherwise. fn names the
// forwarding function in the error.
//
// A callee whose parameters cannot be read claims nothing. Claim only fails
// with the introspection errors themselves when no callee could be read;
// otherwise they are joined to the UnexpectedKeywordError, if any.
func Claim(fn string, bag Bag, callees ...any) error {
	sets := make([]ParameterSet, 0, len(callees))
	var failures []error
	for _, c := range callees {
		ps, err := ParametersOf(c)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		sets = append(sets, ps)
	}
	if len(callees) > 0 && len(sets) == 0 {
		return errors.Join(failures...)
	}

	unclaimed := Unclaimed(bag, sets...)
	if len(unclaimed) == 0 {
		return nil
	}
	err := error(&UnexpectedKeywordError{Func: fn, Key: unclaimed[0]})
	if len(failures) > 0 {
		return errors.Join(append([]error{err}, failures...)...)
	}
	return err
}

// Split runs Claim and then returns one applicable subset per callee, in
// order. It is the explicit form of forwarding: call each callee with its
// own bag once Split succeeded.
func Split(fn string, bag Bag, callees ...any) ([]Bag, error) {
	if err := Claim(fn, bag, callees...); err != nil {
		return nil, err
	}
	out := make([]Bag, len(callees))
	for i, c := range callees {
		sub, err := ApplicableSubset(c, bag)
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}
