// Package rewrite turns functions that spread their keyword bag into
// callees (f(kwargs...)) into functions that hand each callee only the part
// of the bag it declares, after checking that every key is claimed.
//
// A function is decorated with a directive line in its doc comment:
//
//	//kw:forward
//	func top(kwargs kw.Bag) {
//		ding(kwargs...)
//		boop(kwargs...)
//	}
//
// becomes
//
//	func top(kwargs kw.Bag) {
//		if err := kw.Claim("top", kwargs, ding, boop); err != nil {
//			panic(err)
//		}
//		ding(kw.MustBind(ding, kwargs).(dingOpts))
//		boop(kw.MustBind(boop, kwargs).(*boopOpts))
//	}
package rewrite

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"kwforward/internal/logging"

	"golang.org/x/tools/go/ast/astutil"
)

// DefaultDirective marks a decorated function.
const DefaultDirective = "kw:forward"

// DefaultImportPath is the import path of package kw.
const DefaultImportPath = "kwforward/pkg/kw"

var (
	// ErrSourceUnavailable is returned when a function to decorate has no
	// source to rewrite.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNoForwarding is returned for a decorated function that has a bag
	// parameter but never spreads it into a call.
	ErrNoForwarding = errors.New("no forwarding call site")

	// ErrRewrite is returned when generated code does not parse.
	ErrRewrite = errors.New("rewrite failed")
)

// Options configures a Rewriter.
type Options struct {
	Directive  string   // without the leading "//"
	Decorate   []string // decorated even without the directive; "Type.Method" for methods
	ImportPath string
}

// Rewriter rewrites decorated functions of a parsed file.
type Rewriter struct {
	opts Options
	log  *logging.Logger
}

// New creates a Rewriter, filling unset options with defaults.
func New(opts Options) *Rewriter {
	if opts.Directive == "" {
		opts.Directive = DefaultDirective
	}
	opts.Directive = strings.TrimPrefix(opts.Directive, "//")
	if opts.ImportPath == "" {
		opts.ImportPath = DefaultImportPath
	}
	return &Rewriter{
		opts: opts,
		log:  logging.Get(logging.CategoryRewrite),
	}
}

// Report describes what RewriteFile did.
type Report struct {
	Funcs []*FuncReport
}

// Rewritten counts the call sites that were rewritten.
func (r *Report) Rewritten() int {
	n := 0
	for _, f := range r.Funcs {
		for _, s := range f.Sites {
			if s.Rewritten {
				n++
			}
		}
	}
	return n
}

// Func returns the report for the named function, or nil.
func (r *Report) Func(name string) *FuncReport {
	for _, f := range r.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FuncReport describes one decorated function.
type FuncReport struct {
	Name    string
	Bag     string // empty when the function has no bag parameter
	Skipped bool   // no bag parameter: the function was left as is
	Sites   []Site
	Claims  []string // callee expressions checked by the guard
}

// Site is one forwarding call.
type Site struct {
	Pos        token.Position
	Callee     string
	Rewritten  bool
	Transitive bool
	Reason     string // why the site was left untouched
}

func (s Site) String() string {
	if s.Rewritten {
		return fmt.Sprintf("%s: %s rewritten", s.Pos, s.Callee)
	}
	return fmt.Sprintf("%s: %s left untouched: %s", s.Pos, s.Callee, s.Reason)
}

// target is a decorated function during a rewrite.
type target struct {
	decl   *ast.FuncDecl
	name   string
	bag    string
	sites  []*site
	report *FuncReport
}

// exportable reports whether every forwarding call of t resolves from
// package scope, so other functions can name t's callees.
func (t *target) exportable() bool {
	for _, s := range t.sites {
		if s.res == nil || !s.res.global {
			return false
		}
	}
	return true
}

// RewriteFile rewrites every decorated function of file in place.
func (rw *Rewriter) RewriteFile(fset *token.FileSet, file *ast.File) (*Report, error) {
	sc := collectScope(file)
	targets, err := rw.findTargets(file, sc)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	byName := make(map[string]*target, len(targets))
	for _, t := range targets {
		report.Funcs = append(report.Funcs, t.report)
		if t.decl.Recv == nil {
			byName[t.name] = t
		}
		t.bag = bagParam(t.decl)
		t.report.Bag = t.bag
		if t.bag == "" {
			t.report.Skipped = true
			logging.RewriteDebug("%s: no bag parameter, left unchanged", t.name)
			continue
		}
		t.sites = findSites(t.decl, t.bag, sc)
		if len(t.sites) == 0 {
			return nil, fmt.Errorf("%s: %w of %s", t.name, ErrNoForwarding, t.bag)
		}
	}

	qual, imported := importQualifier(file, rw.opts.ImportPath)
	for _, t := range targets {
		if t.report.Skipped {
			continue
		}
		if err := rw.rewriteTarget(fset, t, byName, qual); err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		stripDirective(file, t.decl, rw.opts.Directive)
	}
	if !imported && report.Rewritten() > 0 {
		astutil.AddImport(fset, file, rw.opts.ImportPath)
	}
	if len(report.Funcs) > 0 {
		logging.Rewrite("%s: %d decorated functions, %d call sites rewritten",
			fset.Position(file.Package).Filename, len(report.Funcs), report.Rewritten())
	}
	return report, nil
}

func (rw *Rewriter) findTargets(file *ast.File, sc *scope) ([]*target, error) {
	wanted := make(map[string]bool, len(rw.opts.Decorate))
	for _, n := range rw.opts.Decorate {
		wanted[n] = true
	}

	var targets []*target
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		name := funcName(fd)
		if !hasDirective(fd, rw.opts.Directive) && !wanted[name] {
			continue
		}
		delete(wanted, name)
		if fd.Body == nil {
			return nil, fmt.Errorf("%s: %w: function has no body", name, ErrSourceUnavailable)
		}
		targets = append(targets, &target{decl: fd, name: name, report: &FuncReport{Name: name}})
	}
	for name := range wanted {
		return nil, fmt.Errorf("%s: %w: not declared in %s", name, ErrSourceUnavailable, file.Name.Name)
	}
	return targets, nil
}

func (rw *Rewriter) rewriteTarget(fset *token.FileSet, t *target, byName map[string]*target, qual string) error {
	var claims []string
	seen := make(map[string]bool)
	replace := make(map[*ast.CallExpr]string)

	for _, s := range t.sites {
		site := Site{Pos: fset.Position(s.call.Pos()), Callee: exprString(s.call.Fun)}
		if s.res == nil {
			site.Reason = s.reason
			rw.log.Warn("%s: %s", t.name, site)
			t.report.Sites = append(t.report.Sites, site)
			continue
		}

		claim := exprString(s.call.Fun)
		if callee, ok := byName[claim]; ok && s.res.global && !callee.report.Skipped && callee.exportable() {
			claim = transitiveExpr(callee, byName, qual, map[string]bool{t.name: true})
			site.Transitive = true
		}
		replace[s.call] = claim
		if !seen[claim] {
			seen[claim] = true
			claims = append(claims, claim)
		}
		site.Rewritten = true
		logging.RewriteDebug("%s: %s", t.name, site)
		t.report.Sites = append(t.report.Sites, site)
	}
	if len(claims) == 0 {
		return nil
	}

	if err := rewriteCalls(t.decl, replace, t.bag, qual, typesOf(t.sites)); err != nil {
		return err
	}
	guard, err := guardStmt(t, claims, qual)
	if err != nil {
		return err
	}
	t.decl.Body.List = append([]ast.Stmt{guard}, t.decl.Body.List...)
	t.report.Claims = claims
	return nil
}

func typesOf(sites []*site) map[*ast.CallExpr]ast.Expr {
	out := make(map[*ast.CallExpr]ast.Expr, len(sites))
	for _, s := range sites {
		if s.res != nil {
			out[s.call] = s.res.param
		}
	}
	return out
}

// transitiveExpr names callee by what it forwards to. Functions already on
// the path are left out so recursive forwarding terminates.
func transitiveExpr(callee *target, byName map[string]*target, qual string, path map[string]bool) string {
	path[callee.name] = true
	defer delete(path, callee.name)

	args := []string{callee.name}
	seen := make(map[string]bool)
	for _, s := range callee.sites {
		name := exprString(s.call.Fun)
		if path[name] || seen[name] {
			continue
		}
		seen[name] = true
		if next, ok := byName[name]; ok && !next.report.Skipped && next.exportable() {
			args = append(args, transitiveExpr(next, byName, qual, path))
			continue
		}
		args = append(args, name)
	}
	return fmt.Sprintf("%s.Transitive(%s)", qual, strings.Join(args, ", "))
}

func funcName(fd *ast.FuncDecl) string {
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return fd.Name.Name
	}
	return recvTypeName(fd.Recv.List[0].Type) + "." + fd.Name.Name
}

func recvTypeName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.IndexExpr:
		return recvTypeName(t.X)
	case *ast.IndexListExpr:
		return recvTypeName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return exprString(e)
}
