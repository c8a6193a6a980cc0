package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kwforward/pkg/kw"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/goleak"
)

const kwImport = "kwforward/pkg/kw"

func TestParseUnparse(t *testing.T) {
	src := []byte("package demo\n\n// Hello greets.\nfunc Hello( name string ) string { return \"hi \"+name }\n")

	fset, file, err := Parse("demo.go", src)
	require.NoError(t, err)
	assert.Equal(t, "demo", file.Name.Name)

	out, err := Unparse(fset, file)
	require.NoError(t, err)
	assert.Contains(t, string(out), "// Hello greets.")
	assert.Contains(t, string(out), "func Hello(name string) string { return \"hi \" + name }")
}

func TestParseSyntaxError(t *testing.T) {
	_, _, err := Parse("bad.go", []byte("package demo\nfunc {"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestCheckImports(t *testing.T) {
	in := NewInterpreter([]string{"strings"}, kwImport)

	_, ok, err := Parse("ok.go", []byte("package demo\nimport (\n\"strings\"\n\"kwforward/pkg/kw\"\n)\nvar _ = strings.ToUpper\nvar _ kw.Bag\n"))
	require.NoError(t, err)
	assert.NoError(t, in.CheckImports(ok))

	_, bad, err := Parse("bad.go", []byte("package demo\nimport \"os\"\nvar _ = os.Exit\n"))
	require.NoError(t, err)
	err = in.CheckImports(bad)
	assert.ErrorIs(t, err, ErrForbiddenImport)
	assert.Contains(t, err.Error(), "os")
}

func TestStdlibSymbolsFollowAllowList(t *testing.T) {
	in := NewInterpreter([]string{"strings"}, kwImport)

	var syms interp.Exports
	require.NotPanics(t, func() { syms = in.stdlibSymbols() })
	assert.Contains(t, syms, "strings/strings")
	assert.NotContains(t, syms, "os/os")
	for key := range stdlib.Symbols {
		if !strings.Contains(key, "/") {
			assert.Contains(t, syms, key)
		}
	}
}

func TestCompileAndLookup(t *testing.T) {
	src := `package demo

import "strings"

func Shout(s string) string { return strings.ToUpper(s) + "!" }

func whisper(s string) string { return strings.ToLower(s) }
`
	unit, err := NewInterpreter([]string{"strings"}, kwImport).Compile(context.Background(), "demo.go", []byte(src))
	require.NoError(t, err)

	v, err := unit.Lookup("Shout")
	require.NoError(t, err)
	shout, ok := v.Interface().(func(string) string)
	require.True(t, ok)
	assert.Equal(t, "HEY!", shout("hey"))

	v, err = unit.Lookup("whisper")
	require.NoError(t, err)
	assert.Equal(t, "hey", v.Interface().(func(string) string)("HEY"))

	_, err = unit.Lookup("Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompileSeesKw(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

func Keys(b kw.Bag) []string { return b.Keys() }
`
	unit, err := NewInterpreter(nil, kwImport).Compile(context.Background(), "demo.go", []byte(src))
	require.NoError(t, err)

	v, err := unit.Lookup("Keys")
	require.NoError(t, err)
	keys := v.Interface().(func(kw.Bag) []string)
	assert.Equal(t, []string{"a", "b"}, keys(kw.Bag{"b": 1, "a": 2}))
}

func TestScriptDescriber(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

type custom struct{}

func (custom) Parameters() (kw.ParameterSet, error) {
	return kw.ParameterSet{KeywordOnly: []string{"size"}}, nil
}

func Subset(b kw.Bag) (kw.Bag, error) {
	var d kw.Describer = custom{}
	return kw.ApplicableSubset(d, b)
}
`
	unit, err := NewInterpreter(nil, kwImport).Compile(context.Background(), "demo.go", []byte(src))
	require.NoError(t, err)

	v, err := unit.Lookup("Subset")
	require.NoError(t, err)
	subset := v.Interface().(func(kw.Bag) (kw.Bag, error))

	got, err := subset(kw.Bag{"size": 1, "colour": "red"})
	require.NoError(t, err)
	assert.Equal(t, kw.Bag{"size": 1}, got)
}

func TestCompileErrors(t *testing.T) {
	in := NewInterpreter([]string{"strings"}, kwImport)
	ctx := context.Background()

	_, err := in.Compile(ctx, "forbidden.go", []byte("package demo\nimport \"os\"\nvar _ = os.Exit\n"))
	assert.ErrorIs(t, err, ErrForbiddenImport)

	_, err = in.Compile(ctx, "undefined.go", []byte("package demo\nfunc F() int { return missing }\n"))
	assert.ErrorIs(t, err, ErrCompile)

	_, err = in.Compile(ctx, "syntax.go", []byte("package demo\nfunc F( {"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("result", func(t *testing.T) {
		out, err := Run(context.Background(), func() ([]any, error) { return []any{1, "two"}, nil })
		require.NoError(t, err)
		assert.Equal(t, []any{1, "two"}, out)
	})

	t.Run("error panic", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Run(context.Background(), func() ([]any, error) { panic(boom) })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("value panic", func(t *testing.T) {
		_, err := Run(context.Background(), func() ([]any, error) { panic("boom") })
		require.Error(t, err)
		assert.Equal(t, "panic: boom", err.Error())
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := Run(ctx, func() ([]any, error) {
			<-release
			return nil, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRunInterpretedPanic(t *testing.T) {
	src := `package demo

func Boom() { panic("boom from script") }
`
	unit, err := NewInterpreter(nil, kwImport).Compile(context.Background(), "demo.go", []byte(src))
	require.NoError(t, err)
	v, err := unit.Lookup("Boom")
	require.NoError(t, err)

	_, err = Run(context.Background(), func() ([]any, error) {
		v.Interface().(func())()
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom from script"), err.Error())
}
