package rewrite

import (
	"bytes"
	"go/format"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"kwforward/internal/logging"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func rewriteSrc(t *testing.T, src string, opts Options) (string, *Report, error) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "demo.go", src, parser.ParseComments|parser.SkipObjectResolution)
	require.NoError(t, err)

	report, err := New(opts).RewriteFile(fset, file)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	require.NoError(t, format.Node(&buf, fset, file))
	return buf.String(), report, nil
}

// lines trims every line of s so assertions do not depend on indentation.
func lines(s string) string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		out = append(out, strings.TrimSpace(l))
	}
	return strings.Join(out, "\n")
}

const dingBoop = `package demo

import "kwforward/pkg/kw"

type dingOpts struct{ Dingo string }

type boopOpts struct{ Boonk string }

func ding(o dingOpts) {}

func boop(o *boopOpts) {}

// top forwards its keywords.
//
//kw:forward
func top(kwargs kw.Bag) {
	ding(kwargs...)
	boop(kwargs...)
}
`

func TestRewriteDirectCallees(t *testing.T) {
	out, report, err := rewriteSrc(t, dingBoop, Options{})
	require.NoError(t, err)

	got := lines(out)
	assert.Contains(t, got, "if err := kw.Claim(\"top\", kwargs, ding, boop); err != nil {\npanic(err)\n}")
	assert.Contains(t, got, "ding(kw.MustBind(ding, kwargs).(dingOpts))")
	assert.Contains(t, got, "boop(kw.MustBind(boop, kwargs).(*boopOpts))")
	assert.NotContains(t, got, "kwargs...")
	assert.NotContains(t, got, "//kw:forward")
	assert.Contains(t, got, "// top forwards its keywords.")
	assert.Contains(t, got, "func top(kwargs kw.Bag) {")

	// the guard runs before the first forwarding call
	assert.Less(t, strings.Index(got, "kw.Claim"), strings.Index(got, "ding(kw.MustBind"))

	fr := report.Func("top")
	require.NotNil(t, fr)
	assert.Equal(t, "kwargs", fr.Bag)
	assert.False(t, fr.Skipped)
	assert.Equal(t, []string{"ding", "boop"}, fr.Claims)
	assert.Equal(t, 2, report.Rewritten())
	for _, s := range fr.Sites {
		assert.True(t, s.Rewritten, s.String())
		assert.Equal(t, "demo.go", s.Pos.Filename)
	}
}

func TestRewriteIsStable(t *testing.T) {
	once, _, err := rewriteSrc(t, dingBoop, Options{})
	require.NoError(t, err)

	// the directive is gone, so a second pass finds nothing to do
	twice, report, err := rewriteSrc(t, once, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Funcs)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second rewrite changed the file (-once +twice):\n%s", diff)
	}
}

func TestRewriteAddsImport(t *testing.T) {
	src := `package demo

func sink(m map[string]any) {}

//kw:forward
func top(kwargs map[string]any) {
	sink(kwargs...)
}
`
	out, _, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `import "kwforward/pkg/kw"`)
	assert.Contains(t, out, "sink(kw.MustBind(sink, kwargs).(map[string]any))")
}

func TestRewriteUsesImportName(t *testing.T) {
	src := `package demo

import k "example.com/lib/kw"

func sink(m k.Bag) {}

//kw:forward
func top(kwargs k.Bag) {
	sink(kwargs...)
}
`
	out, _, err := rewriteSrc(t, src, Options{ImportPath: "example.com/lib/kw"})
	require.NoError(t, err)
	assert.Contains(t, out, `k.Claim("top", kwargs, sink)`)
	assert.Contains(t, out, "sink(k.MustBind(sink, kwargs).(k.Bag))")
	assert.Equal(t, 1, strings.Count(out, "example.com/lib/kw"))
}

func TestRewriteErrorReturningGuard(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

type opts struct{ N int }

func count(o opts) int { return o.N }

//kw:forward
func top(kwargs kw.Bag) (n int, label string, err error) {
	return count(kwargs...), "ok", nil
}
`
	out, _, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "return *new(int), *new(string), err")
	assert.Contains(t, out, `return count(kw.MustBind(count, kwargs).(opts)), "ok", nil`)
	assert.NotContains(t, out, "panic(err)")
}

func TestRewriteParamsAndMethods(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

type svcOpts struct{ Verbose bool }

type cbOpts struct{ Retries int }

type svc struct{}

func (s *svc) run(o svcOpts) {}

//kw:forward
func (s *svc) handle(cb func(cbOpts), kwargs kw.Bag) {
	s.run(kwargs...)
	cb(kwargs...)
}
`
	out, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	got := lines(out)
	assert.Contains(t, got, `kw.Claim("handle", kwargs, s.run, cb)`)
	assert.Contains(t, got, "s.run(kw.MustBind(s.run, kwargs).(svcOpts))")
	assert.Contains(t, got, "cb(kw.MustBind(cb, kwargs).(cbOpts))")
	assert.NotNil(t, report.Func("svc.handle"))
}

func TestUnresolvedSitesAreLeftUntouched(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	src := `package demo

import (
	"strings"

	"kwforward/pkg/kw"
)

type dingOpts struct{ Dingo string }

func ding(o dingOpts) {}

//kw:forward
func top(kwargs kw.Bag) {
	f := ding
	f(kwargs...)
	strings.Fields(kwargs...)
	ding(kwargs...)
}
`
	out, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	got := lines(out)
	assert.Contains(t, got, "f(kwargs...)")
	assert.Contains(t, got, "strings.Fields(kwargs...)")
	assert.Contains(t, got, `kw.Claim("top", kwargs, ding)`)
	assert.Contains(t, got, "ding(kw.MustBind(ding, kwargs).(dingOpts))")

	fr := report.Func("top")
	require.Len(t, fr.Sites, 3)
	assert.Equal(t, "callee is a local variable", fr.Sites[0].Reason)
	assert.Equal(t, "callee is declared in another package", fr.Sites[1].Reason)
	assert.True(t, fr.Sites[2].Rewritten)
	assert.Equal(t, 1, report.Rewritten())
	assert.Equal(t, 2, logs.Len())
}

func TestAllSitesUnresolved(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

//kw:forward
func top(kwargs kw.Bag) {
	undeclared(kwargs...)
}
`
	out, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.NotContains(t, out, "kw.Claim")
	assert.Contains(t, out, "undeclared(kwargs...)")
	assert.Zero(t, report.Rewritten())
}

func TestTransitiveCallees(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

type dingOpts struct{ Dingo string }

func ding(o dingOpts) {}

//kw:forward
func mid(kwargs kw.Bag) {
	ding(kwargs...)
}

//kw:forward
func top(kwargs kw.Bag) {
	mid(kwargs...)
}
`
	out, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `kw.Claim("top", kwargs, kw.Transitive(mid, ding))`)
	assert.Contains(t, out, "mid(kw.MustBind(kw.Transitive(mid, ding), kwargs).(kw.Bag))")
	assert.Contains(t, out, `kw.Claim("mid", kwargs, ding)`)
	assert.True(t, report.Func("top").Sites[0].Transitive)
}

func TestTransitiveCycleTerminates(t *testing.T) {
	src := `package demo

import "kwforward/pkg/kw"

//kw:forward
func ping(kwargs kw.Bag) {
	pong(kwargs...)
}

//kw:forward
func pong(kwargs kw.Bag) {
	ping(kwargs...)
}
`
	out, _, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `kw.Claim("ping", kwargs, kw.Transitive(pong))`)
	assert.Contains(t, out, `kw.Claim("pong", kwargs, kw.Transitive(ping))`)
}

func TestNoBagParameterIsSkipped(t *testing.T) {
	src := `package demo

//kw:forward
func add(a, b int) int { return a + b }
`
	out, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Equal(t, src, out)
	require.Len(t, report.Funcs, 1)
	assert.True(t, report.Funcs[0].Skipped)
	assert.Empty(t, report.Funcs[0].Bag)
}

func TestDecorateByName(t *testing.T) {
	src := strings.Replace(dingBoop, "//\n//kw:forward\n", "", 1)

	_, report, err := rewriteSrc(t, src, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Funcs)

	out, report, err := rewriteSrc(t, src, Options{Decorate: []string{"top"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rewritten())
	assert.Contains(t, out, `kw.Claim("top", kwargs, ding, boop)`)
}

func TestCustomDirective(t *testing.T) {
	src := strings.Replace(dingBoop, "//kw:forward", "//demo:splat", 1)

	out, report, err := rewriteSrc(t, src, Options{Directive: "//demo:splat"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rewritten())
	assert.NotContains(t, out, "demo:splat")
}

func TestRewriteErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want error
	}{
		{
			name: "no forwarding call",
			src:  "package demo\n\nimport \"kwforward/pkg/kw\"\n\n//kw:forward\nfunc top(kwargs kw.Bag) int { return len(kwargs) }\n",
			want: ErrNoForwarding,
		},
		{
			name: "bag passed without spreading",
			src:  "package demo\n\nimport \"kwforward/pkg/kw\"\n\nfunc sink(b kw.Bag) {}\n\n//kw:forward\nfunc top(kwargs kw.Bag) { sink(kwargs) }\n",
			want: ErrNoForwarding,
		},
		{
			name: "no body",
			src:  "package demo\n\nimport \"kwforward/pkg/kw\"\n\n//kw:forward\nfunc top(kwargs kw.Bag)\n",
			want: ErrSourceUnavailable,
		},
		{
			name: "unknown name",
			src:  dingBoop,
			opts: Options{Decorate: []string{"missing"}},
			want: ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := rewriteSrc(t, tt.src, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsDirective(t *testing.T) {
	assert.True(t, isDirective("//kw:forward", "kw:forward"))
	assert.True(t, isDirective("//kw:forward keep", "kw:forward"))
	assert.False(t, isDirective("//kw:forwarded", "kw:forward"))
	assert.False(t, isDirective("// kw:forward", "kw:forward"))
}
