package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

// rewriteCalls replaces the spread bag of every call in replace with a bound
// keyword argument for that call's callee.
func rewriteCalls(fd *ast.FuncDecl, replace map[*ast.CallExpr]string, bag, qual string, params map[*ast.CallExpr]ast.Expr) error {
	var err error
	astutil.Apply(fd.Body, nil, func(c *astutil.Cursor) bool {
		call, ok := c.Node().(*ast.CallExpr)
		if !ok {
			return true
		}
		claim, ok := replace[call]
		if !ok {
			return true
		}
		bind, perr := parseExpr(fmt.Sprintf("%s.MustBind(%s, %s).(%s)", qual, claim, bag, exprString(params[call])))
		if perr != nil {
			err = perr
			return false
		}
		args := append(append([]ast.Expr(nil), call.Args[:len(call.Args)-1]...), bind)
		c.Replace(&ast.CallExpr{
			Fun:    call.Fun,
			Lparen: call.Lparen,
			Args:   args,
			Rparen: call.Rparen,
		})
		return true
	})
	return err
}

// guardStmt builds the unclaimed-key check placed before the body.
func guardStmt(t *target, claims []string, qual string) (ast.Stmt, error) {
	onErr := "panic(err)"
	if zeros, ok := errorReturn(t.decl.Type.Results); ok {
		onErr = "return " + zeros
	}
	src := fmt.Sprintf("func() {\n\tif err := %s.Claim(%q, %s, %s); err != nil {\n\t\t%s\n\t}\n}",
		qual, t.decl.Name.Name, t.bag, strings.Join(claims, ", "), onErr)
	lit, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	return lit.(*ast.FuncLit).Body.List[0], nil
}

// errorReturn renders the values returned alongside err when the last
// result is an error.
func errorReturn(results *ast.FieldList) (string, bool) {
	if results == nil || len(results.List) == 0 {
		return "", false
	}
	var types []ast.Expr
	for _, f := range results.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			types = append(types, f.Type)
		}
	}
	if id, ok := types[len(types)-1].(*ast.Ident); !ok || id.Name != "error" {
		return "", false
	}
	vals := make([]string, 0, len(types))
	for _, t := range types[:len(types)-1] {
		vals = append(vals, "*new("+exprString(t)+")")
	}
	return strings.Join(append(vals, "err"), ", "), true
}

// importQualifier returns the name under which file refers to path, and
// whether the import already exists.
func importQualifier(file *ast.File, path string) (string, bool) {
	for _, imp := range file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == path {
			return importName(imp), true
		}
	}
	return path[strings.LastIndex(path, "/")+1:], false
}

func hasDirective(fd *ast.FuncDecl, directive string) bool {
	if fd.Doc == nil {
		return false
	}
	for _, c := range fd.Doc.List {
		if isDirective(c.Text, directive) {
			return true
		}
	}
	return false
}

func isDirective(text, directive string) bool {
	rest, ok := strings.CutPrefix(text, "//"+directive)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}

// stripDirective removes the directive from fd's doc comment so a rewritten
// file is not rewritten twice.
func stripDirective(file *ast.File, fd *ast.FuncDecl, directive string) {
	if fd.Doc == nil {
		return
	}
	var kept []*ast.Comment
	for _, c := range fd.Doc.List {
		if !isDirective(c.Text, directive) {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		fd.Doc.List = kept
		return
	}
	for i, cg := range file.Comments {
		if cg == fd.Doc {
			file.Comments = append(file.Comments[:i], file.Comments[i+1:]...)
			break
		}
	}
	fd.Doc = nil
}

func exprString(e ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), e); err != nil {
		return fmt.Sprintf("%T", e)
	}
	return buf.String()
}

// parseExpr parses generated code. Positions are cleared so the printer lays
// the new nodes out without relating them to the original file.
func parseExpr(src string) (ast.Expr, error) {
	e, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("%w: generated %q: %v", ErrRewrite, src, err)
	}
	clearPos(e)
	return e, nil
}

var posType = reflect.TypeOf(token.NoPos)

func clearPos(root ast.Node) {
	ast.Inspect(root, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		v := reflect.ValueOf(n)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return true
		}
		v = v.Elem()
		if v.Kind() != reflect.Struct {
			return true
		}
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.Type() == posType && f.CanSet() {
				f.SetInt(int64(token.NoPos))
			}
		}
		return true
	})
}
