// Package script parses, prints and interprets the Go scripts that carry
// decorated functions.
//
// Scripts import package kw like any other package. A script type that
// implements kw.Describer is only seen as one once it has been converted to
// the interface inside the script:
//
//	var d kw.Describer = custom{}
//	sub, err := kw.ApplicableSubset(d, kwargs)
//
// Passed as a plain value, the interpreter hands kw its bare struct, which
// has no Parameters method.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
)

// ErrSyntax is returned for sources that do not parse.
var ErrSyntax = errors.New("syntax error")

// Parse parses a complete Go source file, keeping comments.
func Parse(filename string, src []byte) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return fset, file, nil
}

// Unparse prints file in gofmt style.
func Unparse(fset *token.FileSet, file *ast.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("failed to print %s: %w", file.Name.Name, err)
	}
	return buf.Bytes(), nil
}
