package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "scanctl",
		Short:   "Operator tools for the card scan service",
		Version: Version,
	}

	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(pruneCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
