package script

import (
	"path"
	"reflect"

	"kwforward/pkg/kw"

	"github.com/traefik/yaegi/interp"
)

// Symbols exports package kw to scripts under importPath, in the layout
// produced by yaegi extract.
func Symbols(importPath string) interp.Exports {
	return interp.Exports{
		importPath + "/" + path.Base(importPath): {
			// function, constant and variable definitions
			"ApplicableSubset":     reflect.ValueOf(kw.ApplicableSubset),
			"Bind":                 reflect.ValueOf(kw.Bind),
			"Claim":                reflect.ValueOf(kw.Claim),
			"Describe":             reflect.ValueOf(kw.Describe),
			"ErrBind":              reflect.ValueOf(&kw.ErrBind).Elem(),
			"ErrIntrospection":     reflect.ValueOf(&kw.ErrIntrospection).Elem(),
			"ErrUnexpectedKeyword": reflect.ValueOf(&kw.ErrUnexpectedKeyword).Elem(),
			"Filter":               reflect.ValueOf(kw.Filter),
			"Invoke":               reflect.ValueOf(kw.Invoke),
			"MustBind":             reflect.ValueOf(kw.MustBind),
			"ParametersOf":         reflect.ValueOf(kw.ParametersOf),
			"Split":                reflect.ValueOf(kw.Split),
			"TagName":              reflect.ValueOf(kw.TagName),
			"Transitive":           reflect.ValueOf(kw.Transitive),
			"Unclaimed":            reflect.ValueOf(kw.Unclaimed),

			// type definitions
			"Bag":                    reflect.ValueOf((*kw.Bag)(nil)),
			"BindError":              reflect.ValueOf((*kw.BindError)(nil)),
			"Described":              reflect.ValueOf((*kw.Described)(nil)),
			"Describer":              reflect.ValueOf((*kw.Describer)(nil)),
			"IntrospectionError":     reflect.ValueOf((*kw.IntrospectionError)(nil)),
			"ParameterSet":           reflect.ValueOf((*kw.ParameterSet)(nil)),
			"UnexpectedKeywordError": reflect.ValueOf((*kw.UnexpectedKeywordError)(nil)),

			// interface wrapper definitions
			"_Describer": reflect.ValueOf((*_kw_Describer)(nil)),
		},
	}
}

// _kw_Describer lets interpreted types implement kw.Describer.
type _kw_Describer struct {
	IValue      interface{}
	WParameters func() (kw.ParameterSet, error)
}

func (W _kw_Describer) Parameters() (kw.ParameterSet, error) {
	return W.WParameters()
}
