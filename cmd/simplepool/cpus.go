package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jzx17/simplepool/pkg/affinity"
)

func newCPUsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cpus",
		Short: "Show the hardware concurrency reported by the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), affinity.HardwareConcurrency())
			return err
		},
	}
}
