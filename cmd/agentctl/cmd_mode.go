package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModeCmd() *cobra.Command {
	var section string
	var mode string

	cmd := &cobra.Command{
		Use:   "mode <device-id>",
		Short: "Set the enforcement mode for a section, or the agent-wide default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode == "" {
				return fmt.Errorf("--mode is required")
			}
			return postDirective(cmd, args[0], directiveRequest{Kind: "MODE_UPDATE", Section: section, Mode: mode})
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "config section (omit to set the agent-wide default)")
	cmd.Flags().StringVar(&mode, "mode", "", "observe, shadow, or takeover")
	return cmd
}
