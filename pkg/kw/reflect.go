package kw

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// TagName is the struct tag that renames or hides an options field.
const TagName = "kw"

// targeter is implemented by describers that wrap a callable.
type targeter interface {
	target() any
}

// ParametersOf derives the ParameterSet of callee. Sets are never cached:
// a name may be rebound to another callable between two calls.
//
// Describer implementations report their own set. For plain Go funcs the
// final parameter decides: a Bag (or map[string]any) accepts any keyword, an
// options struct declares one keyword per exported field, anything else
// declares no keywords.
func ParametersOf(callee any) (ParameterSet, error) {
	if callee == nil {
		return ParameterSet{}, &IntrospectionError{Callee: "<nil>", Reason: "callee is nil"}
	}
	if d, ok := callee.(Describer); ok {
		ps, err := d.Parameters()
		if err != nil {
			return ParameterSet{}, err
		}
		if err := ps.Validate(); err != nil {
			return ParameterSet{}, err
		}
		return ps, nil
	}

	v := reflect.ValueOf(callee)
	if v.Kind() != reflect.Func {
		return ParameterSet{}, &IntrospectionError{Callee: v.Type().String(), Reason: "not a function"}
	}
	if v.IsNil() {
		return ParameterSet{}, &IntrospectionError{Callee: v.Type().String(), Reason: "function is nil"}
	}
	return funcParameters(v.Type())
}

func funcParameters(t reflect.Type) (ParameterSet, error) {
	ps := ParameterSet{VarPositional: t.IsVariadic()}
	if t.NumIn() == 0 || t.IsVariadic() {
		return ps, nil
	}

	last := t.In(t.NumIn() - 1)
	if isBagType(last) {
		ps.VarKeyword = true
		return ps, nil
	}
	st := optionsStruct(last)
	if st == nil {
		return ps, nil
	}
	fields, err := keywordFields(st)
	if err != nil {
		return ParameterSet{}, &IntrospectionError{Callee: t.String(), Reason: err.Error()}
	}
	for _, f := range fields {
		ps.KeywordOnly = append(ps.KeywordOnly, f.name)
	}
	return ps, nil
}

func isBagType(t reflect.Type) bool {
	return t.Kind() == reflect.Map &&
		t.Key().Kind() == reflect.String &&
		t.Elem().Kind() == reflect.Interface &&
		t.Elem().NumMethod() == 0
}

func optionsStruct(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

type keywordField struct {
	name  string
	index []int
	typ   reflect.Type
}

// keywordFields lists the settable keyword fields of an options struct,
// including fields promoted from embedded (non-pointer) structs.
func keywordFields(st reflect.Type) ([]keywordField, error) {
	var fields []keywordField
	seen := make(map[string]bool)
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() || throughPointer(st, f.Index) {
			continue
		}
		tag, tagged := f.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		if f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct {
			continue // promoted fields are listed on their own
		}
		name := tag
		if name == "" {
			name = lowerFirst(f.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate keyword %q in %s", name, st)
		}
		seen[name] = true
		fields = append(fields, keywordField{name: name, index: f.Index, typ: f.Type})
	}
	return fields, nil
}

func throughPointer(st reflect.Type, index []int) bool {
	t := st
	for i, idx := range index {
		f := t.Field(idx)
		if i < len(index)-1 && f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
