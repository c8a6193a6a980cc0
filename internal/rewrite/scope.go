package rewrite

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

// scope is what a decorated function can see at entry, besides its own
// parameters and receiver.
type scope struct {
	funcs   map[string]*ast.FuncType   // top-level funcs
	vars    map[string]*ast.FuncType   // package-level vars of func type; nil type when unknown
	methods map[string][]*ast.FuncType // methods by name, any receiver
	imports map[string]bool            // local names of imported packages
}

func collectScope(file *ast.File) *scope {
	sc := &scope{
		funcs:   make(map[string]*ast.FuncType),
		vars:    make(map[string]*ast.FuncType),
		methods: make(map[string][]*ast.FuncType),
		imports: make(map[string]bool),
	}
	for _, imp := range file.Imports {
		sc.imports[importName(imp)] = true
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				sc.funcs[d.Name.Name] = d.Type
			} else {
				sc.methods[d.Name.Name] = append(sc.methods[d.Name.Name], d.Type)
			}
		case *ast.GenDecl:
			if d.Tok != token.VAR {
				continue
			}
			for _, spec := range d.Specs {
				vs := spec.(*ast.ValueSpec)
				for i, name := range vs.Names {
					sc.vars[name.Name] = valueFuncType(vs, i)
				}
			}
		}
	}
	return sc
}

func valueFuncType(vs *ast.ValueSpec, i int) *ast.FuncType {
	if ft, ok := vs.Type.(*ast.FuncType); ok {
		return ft
	}
	if i < len(vs.Values) {
		if lit, ok := vs.Values[i].(*ast.FuncLit); ok {
			return lit.Type
		}
	}
	return nil
}

func importName(imp *ast.ImportSpec) string {
	if imp.Name != nil {
		return imp.Name.Name
	}
	path, err := strconv.Unquote(imp.Path.Value)
	if err != nil {
		return ""
	}
	return path[strings.LastIndex(path, "/")+1:]
}

// resolution is a callee whose final parameter type is known.
type resolution struct {
	param  ast.Expr // type of the callee's final parameter
	global bool     // reachable from package scope
}

type site struct {
	call   *ast.CallExpr
	res    *resolution
	reason string
}

// findSites lists every call in fd's body that spreads the bag parameter.
func findSites(fd *ast.FuncDecl, bag string, sc *scope) []*site {
	locals := localNames(fd)
	entry := entryNames(fd)

	var sites []*site
	astutil.Apply(fd.Body, func(c *astutil.Cursor) bool {
		call, ok := c.Node().(*ast.CallExpr)
		if !ok || !spreadsBag(call, bag) {
			return true
		}
		res, reason := resolve(call.Fun, sc, entry, locals)
		sites = append(sites, &site{call: call, res: res, reason: reason})
		return true
	}, nil)
	return sites
}

func spreadsBag(call *ast.CallExpr, bag string) bool {
	if !call.Ellipsis.IsValid() || len(call.Args) == 0 {
		return false
	}
	id, ok := call.Args[len(call.Args)-1].(*ast.Ident)
	return ok && id.Name == bag
}

// resolve finds the declaration of a callee expression.
func resolve(fun ast.Expr, sc *scope, entry map[string]ast.Expr, locals map[string]bool) (*resolution, string) {
	switch f := fun.(type) {
	case *ast.ParenExpr:
		return resolve(f.X, sc, entry, locals)

	case *ast.Ident:
		if locals[f.Name] {
			return nil, "callee is a local variable"
		}
		if typ, ok := entry[f.Name]; ok {
			ft, ok := typ.(*ast.FuncType)
			if !ok {
				return nil, "parameter is not of func type"
			}
			return finalParam(ft, false)
		}
		if ft, ok := sc.funcs[f.Name]; ok {
			return finalParam(ft, true)
		}
		if ft, ok := sc.vars[f.Name]; ok {
			if ft == nil {
				return nil, "variable has no visible func type"
			}
			return finalParam(ft, true)
		}
		return nil, "not declared in this file"

	case *ast.SelectorExpr:
		x, ok := f.X.(*ast.Ident)
		if !ok {
			return nil, "receiver is not a plain name"
		}
		if locals[x.Name] {
			return nil, "receiver is a local variable"
		}
		_, isEntry := entry[x.Name]
		_, isVar := sc.vars[x.Name]
		if !isEntry && !isVar {
			if sc.imports[x.Name] {
				return nil, "callee is declared in another package"
			}
			return nil, "receiver not declared in this file"
		}
		methods := sc.methods[f.Sel.Name]
		if len(methods) != 1 {
			return nil, "method " + f.Sel.Name + " is not declared exactly once"
		}
		return finalParam(methods[0], !isEntry)
	}
	return nil, "callee is not a name"
}

func finalParam(ft *ast.FuncType, global bool) (*resolution, string) {
	if ft.Params == nil || len(ft.Params.List) == 0 {
		return nil, "callee takes no parameters"
	}
	last := ft.Params.List[len(ft.Params.List)-1].Type
	if _, ok := last.(*ast.Ellipsis); ok {
		return nil, "callee is variadic"
	}
	return &resolution{param: last, global: global}, ""
}

// entryNames maps the parameters and receiver of fd to their types.
func entryNames(fd *ast.FuncDecl) map[string]ast.Expr {
	names := make(map[string]ast.Expr)
	add := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, f := range fl.List {
			for _, n := range f.Names {
				names[n.Name] = f.Type
			}
		}
	}
	add(fd.Recv)
	add(fd.Type.Params)
	add(fd.Type.Results)
	return names
}

// localNames collects every name declared inside fd's body. They are
// either not yet bound when the guard runs or shadow package names.
func localNames(fd *ast.FuncDecl) map[string]bool {
	names := make(map[string]bool)
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			if s.Tok == token.DEFINE {
				for _, lhs := range s.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						names[id.Name] = true
					}
				}
			}
		case *ast.ValueSpec:
			for _, id := range s.Names {
				names[id.Name] = true
			}
		case *ast.RangeStmt:
			if s.Tok == token.DEFINE {
				for _, e := range []ast.Expr{s.Key, s.Value} {
					if id, ok := e.(*ast.Ident); ok {
						names[id.Name] = true
					}
				}
			}
		case *ast.FuncLit:
			for _, f := range s.Type.Params.List {
				for _, id := range f.Names {
					names[id.Name] = true
				}
			}
		}
		return true
	})
	return names
}

// bagParam returns the name of fd's bag parameter: its last parameter when
// that is a kw.Bag or a map[string]any.
func bagParam(fd *ast.FuncDecl) string {
	params := fd.Type.Params
	if params == nil || len(params.List) == 0 {
		return ""
	}
	last := params.List[len(params.List)-1]
	if len(last.Names) == 0 || !isBagTypeExpr(last.Type) {
		return ""
	}
	name := last.Names[len(last.Names)-1].Name
	if name == "_" {
		return ""
	}
	return name
}

func isBagTypeExpr(e ast.Expr) bool {
	switch t := e.(type) {
	case *ast.SelectorExpr:
		return t.Sel.Name == "Bag"
	case *ast.MapType:
		key, ok := t.Key.(*ast.Ident)
		if !ok || key.Name != "string" {
			return false
		}
		switch v := t.Value.(type) {
		case *ast.Ident:
			return v.Name == "any"
		case *ast.InterfaceType:
			return v.Methods == nil || len(v.Methods.List) == 0
		}
	}
	return false
}
