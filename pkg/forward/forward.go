// Package forward decorates Go scripts whose functions spread a keyword bag
// into their callees, and runs them.
//
// Load parses a script, rewrites every decorated function so each callee
// receives only the keywords it declares and unclaimed keywords are
// rejected before any callee runs, then compiles the result. Decoration
// happens once per Load; every later Call runs the rewritten body.
package forward

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"time"

	"kwforward/internal/config"
	"kwforward/internal/logging"
	"kwforward/internal/rewrite"
	"kwforward/internal/script"
	"kwforward/pkg/kw"
)

var (
	// ErrSourceUnavailable is returned when a script or a function to
	// decorate has no readable source.
	ErrSourceUnavailable = rewrite.ErrSourceUnavailable

	// ErrNoForwarding is returned for a decorated function that never
	// spreads its bag parameter.
	ErrNoForwarding = rewrite.ErrNoForwarding

	// ErrRewrite is returned when a decorated function cannot be rewritten.
	ErrRewrite = rewrite.ErrRewrite
)

// Option configures Load and LoadSource.
type Option func(*options)

type options struct {
	rewrite rewrite.Options
	allowed []string
	timeout time.Duration
}

func defaultOptions() *options {
	cfg := config.DefaultConfig()
	o := &options{}
	WithConfig(cfg)(o)
	return o
}

// WithConfig applies the rewrite and script sections of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.rewrite = rewrite.Options{
			Directive:  cfg.Rewrite.Directive,
			ImportPath: cfg.Rewrite.ImportPath,
			Decorate:   append([]string(nil), cfg.Rewrite.Decorate...),
		}
		o.allowed = append([]string(nil), cfg.Script.AllowedPackages...)
		o.timeout = cfg.GetCallTimeout()
	}
}

// WithDecorate decorates the named functions whether or not they carry the
// directive. Methods are named "Type.Method".
func WithDecorate(names ...string) Option {
	return func(o *options) {
		o.rewrite.Decorate = append(o.rewrite.Decorate, names...)
	}
}

// WithDirective changes the comment that marks decorated functions.
func WithDirective(directive string) Option {
	return func(o *options) {
		o.rewrite.Directive = directive
	}
}

// WithAllowedPackages sets the standard library packages scripts may import.
func WithAllowedPackages(pkgs ...string) Option {
	return func(o *options) {
		o.allowed = pkgs
	}
}

// WithCallTimeout bounds every Call. Zero leaves calls bounded only by their
// context.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Rewrite decorates src without compiling it. It returns the rewritten
// source and what was rewritten.
func Rewrite(filename string, src []byte, opts ...Option) ([]byte, *rewrite.Report, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return rewriteSource(o, filename, src)
}

func rewriteSource(o *options, filename string, src []byte) ([]byte, *rewrite.Report, error) {
	fset, file, err := script.Parse(filename, src)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	report, err := rewrite.New(o.rewrite).RewriteFile(fset, file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	out, err := script.Unparse(fset, file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", filename, ErrRewrite, err)
	}
	return out, report, nil
}

// Program is a decorated, compiled script.
type Program struct {
	name    string
	source  []byte
	report  *rewrite.Report
	unit    *script.Unit
	timeout time.Duration
}

// Load reads, decorates and compiles the script at path.
func Load(ctx context.Context, path string, opts ...Option) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrSourceUnavailable, err)
	}
	return LoadSource(ctx, path, src, opts...)
}

// LoadSource decorates and compiles src. name is used in positions and
// error messages.
func LoadSource(ctx context.Context, name string, src []byte, opts ...Option) (*Program, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	start := time.Now()
	out, report, err := rewriteSource(o, name, src)
	if err != nil {
		return nil, err
	}
	unit, err := script.NewInterpreter(o.allowed, o.rewrite.ImportPath).Compile(ctx, name, out)
	if err != nil {
		return nil, err
	}

	logging.Forward("loaded %s: %d decorated functions, %d call sites rewritten (%v)",
		name, len(report.Funcs), report.Rewritten(), time.Since(start))
	return &Program{
		name:    name,
		source:  out,
		report:  report,
		unit:    unit,
		timeout: o.timeout,
	}, nil
}

// Source returns the rewritten script.
func (p *Program) Source() []byte {
	return p.source
}

// Report describes the decoration of the script.
func (p *Program) Report() *rewrite.Report {
	return p.report
}

// Func returns the function bound to name.
func (p *Program) Func(name string) (reflect.Value, error) {
	v, err := p.unit.Lookup(name)
	if err != nil {
		return reflect.Value{}, err
	}
	if v.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%s.%s is a %s, not a function", p.name, name, v.Kind())
	}
	return v, nil
}

// Call invokes name with args followed by its keyword parameter bound from
// bag. A panic in the script, including the one raised by a failed guard,
// is returned as the error.
func (p *Program) Call(ctx context.Context, name string, bag kw.Bag, args ...any) ([]any, error) {
	fn, err := p.Func(name)
	if err != nil {
		return nil, err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	logging.ForwardDebug("calling %s with keywords %v", name, bag.Keys())
	out, err := script.Run(ctx, func() ([]any, error) {
		return kw.Invoke(fn.Interface(), bag, args...)
	})
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
