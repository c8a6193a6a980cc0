package script

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"kwforward/internal/logging"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

var (
	// ErrForbiddenImport is returned for scripts importing packages outside
	// the allow list.
	ErrForbiddenImport = errors.New("forbidden import")

	// ErrCompile is returned when the interpreter rejects a script.
	ErrCompile = errors.New("compile failed")

	// ErrNotFound is returned by Lookup for names the script does not define.
	ErrNotFound = errors.New("not defined")
)

// Interpreter evaluates scripts with yaegi. Only the allowed standard
// library packages and package kw are visible to scripts.
type Interpreter struct {
	allowed    map[string]bool
	importPath string
}

// NewInterpreter creates an interpreter. importPath is where scripts import
// package kw from.
func NewInterpreter(allowedPackages []string, importPath string) *Interpreter {
	allowed := make(map[string]bool, len(allowedPackages))
	for _, p := range allowedPackages {
		allowed[p] = true
	}
	return &Interpreter{
		allowed:    allowed,
		importPath: importPath,
	}
}

// CheckImports validates that file only imports allowed packages.
func (in *Interpreter) CheckImports(file *ast.File) error {
	var forbidden []string
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("%w: malformed import %s", ErrForbiddenImport, imp.Path.Value)
		}
		if p != in.importPath && !in.allowed[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %v (allowed: %v)", ErrForbiddenImport, forbidden, in.allowedList())
	}
	return nil
}

func (in *Interpreter) allowedList() []string {
	out := make([]string, 0, len(in.allowed))
	for p := range in.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// stdlibSymbols narrows yaegi's standard library to the allow list. Keys
// without an import path, such as yaegi's own ".", are always kept.
func (in *Interpreter) stdlibSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		if i := strings.LastIndex(key, "/"); i < 0 || in.allowed[key[:i]] {
			out[key] = syms
		}
	}
	return out
}

// Compile evaluates src, binding its declarations in a fresh interpreter.
func (in *Interpreter) Compile(ctx context.Context, filename string, src []byte) (*Unit, error) {
	_, file, err := Parse(filename, src)
	if err != nil {
		return nil, err
	}
	if err := in.CheckImports(file); err != nil {
		logging.Script("rejected %s: %v", filename, err)
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(in.stdlibSymbols()); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(Symbols(in.importPath)); err != nil {
		return nil, fmt.Errorf("failed to load kw symbols: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, filename, err)
	}

	logging.ScriptDebug("compiled %s (package %s, %d decls)", filename, file.Name.Name, len(file.Decls))
	return &Unit{interp: i, pkg: file.Name.Name}, nil
}

// Unit is a compiled script.
type Unit struct {
	interp *interp.Interpreter
	pkg    string
}

// Lookup returns the value bound to name in the script's package.
func (u *Unit) Lookup(name string) (reflect.Value, error) {
	v, err := u.interp.Eval(u.pkg + "." + name)
	if err != nil {
		// unexported names are only reachable from inside the package
		if v, err = u.interp.Eval(name); err != nil {
			return reflect.Value{}, fmt.Errorf("%s.%s: %w", u.pkg, name, ErrNotFound)
		}
	}
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%s.%s: %w", u.pkg, name, ErrNotFound)
	}
	return v, nil
}

// Run calls fn on its own goroutine and waits for it or for ctx. Panics in
// fn, including panics raised by interpreted code, are returned as errors.
func Run(ctx context.Context, fn func() ([]any, error)) ([]any, error) {
	type result struct {
		out []any
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: panicError(r)}
			}
		}()
		out, err := fn()
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("script call timed out: %w", ctx.Err())
	}
}

func panicError(r any) error {
	switch p := r.(type) {
	case interp.Panic:
		r = p.Value
	case *interp.Panic:
		r = p.Value
	}
	if v, ok := r.(reflect.Value); ok && v.IsValid() && v.CanInterface() {
		r = v.Interface()
	}
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
