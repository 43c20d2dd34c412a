// Package lint provides static analysis checks for matrixci code.
//
// The analyzer enforces project conventions:
//   - os/exec is imported only by the shell execution package; every
//     other package spawns processes through shell.Executor.
//   - Empty string literals are not passed to pipeline.ParseEnv or
//     pipeline.Load, where they always fail at runtime.
//
// Usage:
//
//	go install github.com/example/matrixci/cmd/pipelint@latest
//	pipelint ./...
package lint

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// shellPackageSuffix names the one package allowed to import os/exec.
const shellPackageSuffix = "internal/shell"

// Analyzer is the matrixci lint analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "pipelint",
	Doc:      "checks for matrixci convention violations",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.ImportSpec)(nil),
		(*ast.CallExpr)(nil),
	}

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.ImportSpec:
			checkExecImport(pass, node)
		case *ast.CallExpr:
			if sel, ok := node.Fun.(*ast.SelectorExpr); ok {
				checkSelectorCall(pass, node, sel)
			}
		}
	})

	return nil, nil
}

// checkExecImport reports os/exec imports outside the shell package.
func checkExecImport(pass *analysis.Pass, spec *ast.ImportSpec) {
	path, err := strconv.Unquote(spec.Path.Value)
	if err != nil || path != "os/exec" {
		return
	}
	if strings.HasSuffix(pass.Pkg.Path(), shellPackageSuffix) {
		return
	}
	pass.Reportf(spec.Pos(), "os/exec imported outside the shell package - run commands through shell.Executor")
}

// checkSelectorCall checks calls like pipeline.ParseEnv("...").
func checkSelectorCall(pass *analysis.Pass, call *ast.CallExpr, sel *ast.SelectorExpr) {
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != "pipeline" {
		return
	}

	switch sel.Sel.Name {
	case "ParseEnv", "Load":
		checkEmptyStringArg(pass, call, sel.Sel.Name)
	}
}

// checkEmptyStringArg reports if the first argument is an empty string literal.
func checkEmptyStringArg(pass *analysis.Pass, call *ast.CallExpr, funcName string) {
	if len(call.Args) == 0 {
		return
	}

	if lit, ok := call.Args[0].(*ast.BasicLit); ok && lit.Kind == token.STRING {
		if lit.Value == `""` || lit.Value == "``" {
			pass.Reportf(lit.Pos(), "%s called with empty string literal - always fails at runtime", funcName)
		}
	}
}
