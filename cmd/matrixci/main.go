// Command matrixci runs stage-based CI pipelines with matrix job
// expansion on the local host.
package main

import (
	"fmt"
	"os"

	"github.com/example/matrixci/cmd/matrixci/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
