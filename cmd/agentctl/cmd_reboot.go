package main

import "github.com/spf13/cobra"

func newRebootCmd() *cobra.Command {
	var delaySec int

	cmd := &cobra.Command{
		Use:   "reboot <device-id>",
		Short: "Schedule a device reboot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postDirective(cmd, args[0], directiveRequest{Kind: "REBOOT", DelaySec: delaySec})
		},
	}

	cmd.Flags().IntVar(&delaySec, "delay", 0, "seconds to wait before rebooting")
	return cmd
}
