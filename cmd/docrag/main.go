// Package main provides the entry point for the docrag CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/docrag/cmd/docrag/cmd"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, docerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
