package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newConfigPushCmd() *cobra.Command {
	var section string
	var version uint64
	var file string

	cmd := &cobra.Command{
		Use:   "config-push <device-id>",
		Short: "Push an incremental diff for a single config section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if section == "" {
				return fmt.Errorf("--section is required")
			}
			doc, err := readDocument(file)
			if err != nil {
				return err
			}
			return postDirective(cmd, args[0], directiveRequest{
				Kind: "CONFIG_PUSH", Section: section, Version: version, Document: doc,
			})
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "target config section")
	cmd.Flags().Uint64Var(&version, "version", 0, "section version to apply this document as")
	cmd.Flags().StringVar(&file, "file", "", "JSON document file (- for stdin)")
	return cmd
}

func readDocument(path string) (map[string]interface{}, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document JSON: %w", err)
	}
	return doc, nil
}
