// Package main provides the entry point for the ragcore CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/ragcore/cmd/ragcore/cmd"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == vectorworker.HiddenSubcommand {
		if err := runWorker(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: ragcore %s <socket-path> <pidfile-path>", vectorworker.HiddenSubcommand)
	}
	return vectorworker.Run(args[0], args[1])
}
