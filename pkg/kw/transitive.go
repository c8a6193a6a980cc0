package kw

// Transitive describes a forwarding function by what it forwards: the
// keywords its own options struct declares plus everything its callees
// accept. The callees are read on every call.
//
// A forwarding function that takes a Bag would otherwise claim every key,
// hiding keys that none of its own callees accepts.
func Transitive(fn any, callees ...any) Describer {
	return &transitive{fn: fn, callees: callees}
}

type transitive struct {
	fn      any
	callees []any
}

func (t *transitive) Parameters() (ParameterSet, error) {
	own, err := ParametersOf(t.fn)
	if err != nil {
		return ParameterSet{}, err
	}
	ps := ParameterSet{
		Positional:  own.Positional,
		KeywordOnly: own.KeywordOnly,
	}
	for _, c := range t.callees {
		sub, err := ParametersOf(c)
		if err != nil {
			return ParameterSet{}, err
		}
		ps = ps.union(sub)
	}
	return ps, nil
}

func (t *transitive) target() any { return t.fn }
