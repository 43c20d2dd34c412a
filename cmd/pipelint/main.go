// Command pipelint runs static analysis on matrixci code.
//
// Usage:
//
//	pipelint ./...
//
// It reports os/exec imports outside the shell execution package and
// empty string literals passed to pipeline config helpers.
package main

import (
	"github.com/example/matrixci/pkg/lint"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(lint.Analyzer)
}
