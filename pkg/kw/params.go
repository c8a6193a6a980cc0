package kw

import (
	"fmt"
	"strings"
)

// ParameterSet is the declared parameter list of a callable, as far as
// keyword forwarding cares about it.
type ParameterSet struct {
	Positional    []string // positional-or-keyword names
	KeywordOnly   []string
	VarPositional bool
	VarKeyword    bool
}

// Describer is implemented by callables that report their own parameters.
type Describer interface {
	Parameters() (ParameterSet, error)
}

// Accepts reports whether a keyword named name would be accepted.
func (ps ParameterSet) Accepts(name string) bool {
	if ps.VarKeyword {
		return true
	}
	return ps.declares(name)
}

func (ps ParameterSet) declares(name string) bool {
	for _, n := range ps.Positional {
		if n == name {
			return true
		}
	}
	for _, n := range ps.KeywordOnly {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns every declared name, positional first.
func (ps ParameterSet) Names() []string {
	names := make([]string, 0, len(ps.Positional)+len(ps.KeywordOnly))
	names = append(names, ps.Positional...)
	return append(names, ps.KeywordOnly...)
}

// Validate checks that no name is declared twice.
func (ps ParameterSet) Validate() error {
	seen := make(map[string]bool, len(ps.Positional)+len(ps.KeywordOnly))
	for _, n := range ps.Names() {
		if n == "" {
			return &IntrospectionError{Callee: "parameter set", Reason: "empty parameter name"}
		}
		if seen[n] {
			return &IntrospectionError{Callee: "parameter set", Reason: fmt.Sprintf("duplicate parameter %q", n)}
		}
		seen[n] = true
	}
	return nil
}

// String renders the set like a signature, e.g. "(a, b, *, c, **kw)".
func (ps ParameterSet) String() string {
	var parts []string
	parts = append(parts, ps.Positional...)
	if ps.VarPositional {
		parts = append(parts, "*args")
	} else if len(ps.KeywordOnly) > 0 {
		parts = append(parts, "*")
	}
	parts = append(parts, ps.KeywordOnly...)
	if ps.VarKeyword {
		parts = append(parts, "**kw")
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// union merges other into ps. Names already present are kept once.
func (ps ParameterSet) union(other ParameterSet) ParameterSet {
	out := ParameterSet{
		Positional:    append([]string(nil), ps.Positional...),
		KeywordOnly:   append([]string(nil), ps.KeywordOnly...),
		VarPositional: ps.VarPositional || other.VarPositional,
		VarKeyword:    ps.VarKeyword || other.VarKeyword,
	}
	for _, n := range other.Names() {
		if !out.declares(n) {
			out.KeywordOnly = append(out.KeywordOnly, n)
		}
	}
	return out
}

// Described attaches an explicit ParameterSet to a callable.
type Described struct {
	Fn     any
	Params ParameterSet
}

// Describe returns fn with params as its declared parameters. Bind and Invoke
// still call fn itself.
func Describe(fn any, params ParameterSet) *Described {
	return &Described{Fn: fn, Params: params}
}

func (d *Described) Parameters() (ParameterSet, error) {
	if err := d.Params.Validate(); err != nil {
		return ParameterSet{}, err
	}
	return d.Params, nil
}

func (d *Described) target() any { return d.Fn }
