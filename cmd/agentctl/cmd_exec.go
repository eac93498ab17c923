package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd() *cobra.Command {
	var command string
	var argsCSV string
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "exec <device-id>",
		Short: "Run an allow-listed command on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				return fmt.Errorf("--command is required")
			}
			var cmdArgs []string
			if argsCSV != "" {
				cmdArgs = strings.Split(argsCSV, ",")
			}
			return postDirective(cmd, args[0], directiveRequest{
				Kind: "EXEC", Command: command, Args: cmdArgs, TimeoutSec: timeoutSec,
			})
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "allow-listed command name")
	cmd.Flags().StringVar(&argsCSV, "args", "", "comma-separated command arguments")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 30, "command timeout in seconds")
	return cmd
}
