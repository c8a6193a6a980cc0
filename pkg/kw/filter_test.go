package kw

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dingOpts struct {
	Dingo any
	Dinga any
}

type boopOpts struct {
	Boopie any `kw:"boopie"`
	Boonk  any `kw:"boonk"`
	Secret any `kw:"-"`
}

func ding(o dingOpts)    {}
func boop(o *boopOpts)   {}
func anything(extra Bag) {}
func nothing()           {}

func TestFilter(t *testing.T) {
	ps := ParameterSet{Positional: []string{"a"}, KeywordOnly: []string{"b"}}

	tests := []struct {
		name string
		ps   ParameterSet
		bag  Bag
		want Bag
	}{
		{name: "subset", ps: ps, bag: Bag{"a": 1, "b": 2, "c": 3}, want: Bag{"a": 1, "b": 2}},
		{name: "no overlap", ps: ps, bag: Bag{"x": 1}, want: Bag{}},
		{name: "empty bag", ps: ps, bag: Bag{}, want: Bag{}},
		{name: "no parameters", ps: ParameterSet{}, bag: Bag{"a": 1}, want: Bag{}},
		{name: "var keyword", ps: ParameterSet{VarKeyword: true}, bag: Bag{"a": 1, "z": 2}, want: Bag{"a": 1, "z": 2}},
		{name: "var keyword empty", ps: ParameterSet{VarKeyword: true}, bag: Bag{}, want: Bag{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(tt.ps, tt.bag)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	ps := ParameterSet{KeywordOnly: []string{"dingo", "dinga"}}
	bag := Bag{"dingo": 1, "boonk": 2, "dinga": 3}

	once := Filter(ps, bag)
	twice := Filter(ps, once)
	assert.Empty(t, cmp.Diff(once, twice))
}

func TestFilterDoesNotMutate(t *testing.T) {
	bag := Bag{"dingo": 1, "other": 2}
	_ = Filter(ParameterSet{KeywordOnly: []string{"dingo"}}, bag)
	assert.Equal(t, Bag{"dingo": 1, "other": 2}, bag)
}

func TestApplicableSubset(t *testing.T) {
	bag := Bag{"dingo": "x", "boonk": "y", "secret": 1}

	sub, err := ApplicableSubset(ding, bag)
	require.NoError(t, err)
	assert.Equal(t, Bag{"dingo": "x"}, sub)

	sub, err = ApplicableSubset(boop, bag)
	require.NoError(t, err)
	assert.Equal(t, Bag{"boonk": "y"}, sub)

	sub, err = ApplicableSubset(anything, bag)
	require.NoError(t, err)
	assert.Equal(t, bag, sub)

	sub, err = ApplicableSubset(nothing, bag)
	require.NoError(t, err)
	assert.Empty(t, sub)
}

func TestApplicableSubsetIntrospectionFailure(t *testing.T) {
	var nilFunc func(dingOpts)
	for _, callee := range []any{nil, 42, nilFunc} {
		_, err := ApplicableSubset(callee, Bag{"a": 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIntrospection), "got %v", err)
	}
}

func TestUnclaimed(t *testing.T) {
	dingPS, err := ParametersOf(ding)
	require.NoError(t, err)
	boopPS, err := ParametersOf(boop)
	require.NoError(t, err)

	bag := Bag{"dingo": 1, "boonk": 2, "zeta": 3, "alpha": 4}
	assert.Equal(t, []string{"alpha", "zeta"}, Unclaimed(bag, dingPS, boopPS))
	assert.Empty(t, Unclaimed(bag, dingPS, ParameterSet{VarKeyword: true}))
	assert.Equal(t, bag.Keys(), Unclaimed(bag))
}

func TestClaim(t *testing.T) {
	t.Run("union of callees", func(t *testing.T) {
		require.NoError(t, Claim("top", Bag{"dingo": "x", "boonk": "y"}, ding, boop))
	})

	t.Run("extra key", func(t *testing.T) {
		err := Claim("top", Bag{"dingo": "x", "nonsense": 1}, ding, boop)
		var uk *UnexpectedKeywordError
		require.ErrorAs(t, err, &uk)
		assert.Equal(t, "nonsense", uk.Key)
		assert.Equal(t, "top() got an unexpected keyword argument 'nonsense'", err.Error())
	})

	t.Run("same key claimed twice is fine", func(t *testing.T) {
		require.NoError(t, Claim("top", Bag{"dingo": 1}, ding, ding))
	})

	t.Run("one callee unreadable", func(t *testing.T) {
		require.NoError(t, Claim("top", Bag{"dingo": 1}, ding, 7))

		err := Claim("top", Bag{"dingo": 1, "x": 2}, ding, 7)
		assert.ErrorIs(t, err, ErrUnexpectedKeyword)
		assert.ErrorIs(t, err, ErrIntrospection)
	})

	t.Run("every callee unreadable", func(t *testing.T) {
		err := Claim("top", Bag{"dingo": 1}, 7, "nope")
		assert.ErrorIs(t, err, ErrIntrospection)
		assert.NotErrorIs(t, err, ErrUnexpectedKeyword)
	})
}

func TestSplit(t *testing.T) {
	bags, err := Split("top", Bag{"dingo": "x", "boonk": "y"}, ding, boop)
	require.NoError(t, err)
	require.Len(t, bags, 2)
	assert.Equal(t, Bag{"dingo": "x"}, bags[0])
	assert.Equal(t, Bag{"boonk": "y"}, bags[1])

	bags, err = Split("top", Bag{"nonsense": 1}, ding, boop)
	assert.ErrorIs(t, err, ErrUnexpectedKeyword)
	assert.Nil(t, bags)
}

func TestTransitive(t *testing.T) {
	mid := func(kwargs Bag) {}
	tr := Transitive(mid, ding, boop)

	ps, err := ParametersOf(tr)
	require.NoError(t, err)
	assert.False(t, ps.VarKeyword)
	assert.ElementsMatch(t, []string{"dingo", "dinga", "boopie", "boonk"}, ps.Names())

	err = Claim("top", Bag{"dingo": 1, "nonsense": 2}, tr)
	assert.ErrorIs(t, err, ErrUnexpectedKeyword)

	err = Claim("top", Bag{"dingo": 1, "nonsense": 2}, mid)
	assert.NoError(t, err)

	got, err := Bind(tr, Bag{"dingo": 1, "nonsense": 2})
	require.NoError(t, err)
	assert.Equal(t, Bag{"dingo": 1}, got)
}
