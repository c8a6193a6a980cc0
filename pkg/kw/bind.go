package kw

import (
	"fmt"
	"reflect"
)

// Bind builds the value of callee's final parameter from the part of bag the
// callee accepts: the filtered bag itself for callees taking a Bag, or a
// populated options struct. Missing keywords leave their field at its zero
// value.
func Bind(callee any, bag Bag) (any, error) {
	ps, err := ParametersOf(callee)
	if err != nil {
		return nil, err
	}
	t, err := keywordParam(unwrap(callee))
	if err != nil {
		return nil, err
	}
	return bindValue(t, Filter(ps, bag))
}

// MustBind is Bind for generated code, which has already checked the bag
// with Claim. It panics on error.
func MustBind(callee any, bag Bag) any {
	v, err := Bind(callee, bag)
	if err != nil {
		panic(err)
	}
	return v
}

// Invoke calls callee with args followed by its bound keyword parameter.
// A callee without a keyword parameter is called with args alone and
// rejects a non-empty bag the way a fixed signature would. A non-nil
// trailing error result is returned as the error.
func Invoke(callee any, bag Bag, args ...any) ([]any, error) {
	fn := unwrap(callee)
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, &BindError{Target: fmt.Sprintf("%T", fn), Reason: "not a function"}
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, &BindError{Target: t.String(), Reason: "variadic functions cannot be invoked"}
	}

	var bound any
	positional := t.NumIn()
	if _, err := keywordParam(fn); err == nil {
		positional--
		if bound, err = Bind(callee, bag); err != nil {
			return nil, err
		}
	} else if len(bag) > 0 {
		return nil, &UnexpectedKeywordError{Key: bag.Keys()[0]}
	}
	if len(args) != positional {
		return nil, &BindError{Target: t.String(), Reason: fmt.Sprintf("want %d positional arguments, got %d", positional, len(args))}
	}

	in := make([]reflect.Value, 0, t.NumIn())
	for i, a := range args {
		arg := reflect.New(t.In(i)).Elem()
		if err := assign(arg, a); err != nil {
			return nil, &BindError{Target: t.String(), Reason: fmt.Sprintf("argument %d: %v", i, err)}
		}
		in = append(in, arg)
	}
	if positional < t.NumIn() {
		in = append(in, reflect.ValueOf(bound))
	}

	out := v.Call(in)
	results := make([]any, len(out))
	for i, r := range out {
		results[i] = r.Interface()
	}
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if err, _ := results[n-1].(error); err != nil {
			return results, err
		}
	}
	return results, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func unwrap(callee any) any {
	for {
		t, ok := callee.(targeter)
		if !ok {
			return callee
		}
		callee = t.target()
	}
}

// keywordParam returns the func type of fn after checking that its final
// parameter can receive keywords.
func keywordParam(fn any) (reflect.Type, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, &BindError{Target: fmt.Sprintf("%T", fn), Reason: "not a function"}
	}
	t := v.Type()
	if t.NumIn() == 0 || t.IsVariadic() {
		return nil, &BindError{Target: t.String(), Reason: "no keyword parameter"}
	}
	last := t.In(t.NumIn() - 1)
	if !isBagType(last) && optionsStruct(last) == nil {
		return nil, &BindError{Target: t.String(), Reason: "final parameter is neither a bag nor an options struct"}
	}
	return t, nil
}

func bindValue(fnType reflect.Type, bag Bag) (any, error) {
	t := fnType.In(fnType.NumIn() - 1)
	if isBagType(t) {
		return reflect.ValueOf(map[string]any(bag)).Convert(t).Interface(), nil
	}

	st := optionsStruct(t)
	fields, err := keywordFields(st)
	if err != nil {
		return nil, &BindError{Target: st.String(), Reason: err.Error()}
	}
	out := reflect.New(st)
	for _, f := range fields {
		val, ok := bag[f.name]
		if !ok {
			continue
		}
		if err := assign(out.Elem().FieldByIndex(f.index), val); err != nil {
			return nil, &BindError{Key: f.name, Target: st.String(), Reason: err.Error()}
		}
	}
	if t.Kind() == reflect.Pointer {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

// assign stores val in dst. Numeric conversions are allowed when they do not
// lose information; nil stores the zero value.
func assign(dst reflect.Value, val any) error {
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return nil
	}
	if isNumeric(v.Kind()) && isNumeric(dst.Kind()) {
		if v.CanInt() && v.Int() < 0 && dst.CanUint() {
			return fmt.Errorf("%v overflows %s", val, dst.Type())
		}
		c := v.Convert(dst.Type())
		if !c.Convert(v.Type()).Equal(v) {
			return fmt.Errorf("%v overflows %s", val, dst.Type())
		}
		dst.Set(c)
		return nil
	}
	if v.Kind() == dst.Kind() && v.CanConvert(dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot use %s as %s", v.Type(), dst.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
