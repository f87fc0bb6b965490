package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simplepool",
		Short: "Run workloads on a fixed-size thread pool",
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCPUsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
