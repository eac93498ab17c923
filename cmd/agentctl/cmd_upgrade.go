package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpgradeCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "upgrade <device-id>",
		Short: "Stage and install a firmware version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--target is required")
			}
			return postDirective(cmd, args[0], directiveRequest{Kind: "UPGRADE", TargetVersion: target})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target firmware version")
	return cmd
}
