package main

import (
	"fmt"
	"os"

	"feeledger/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	a := &app{}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close()
		os.Exit(1)
	}
}
