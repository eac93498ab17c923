package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigFullCmd() *cobra.Command {
	var version uint64
	var file string

	cmd := &cobra.Command{
		Use:   "config-full <device-id>",
		Short: "Replace every config section's document in one atomic batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := readSections(file)
			if err != nil {
				return err
			}
			return postDirective(cmd, args[0], directiveRequest{
				Kind: "CONFIG_FULL", Version: version, Sections: sections,
			})
		},
	}

	cmd.Flags().Uint64Var(&version, "version", 0, "version to apply every section in the batch as")
	cmd.Flags().StringVar(&file, "file", "", "JSON file mapping section name to its full document (- for stdin)")
	return cmd
}

func readSections(path string) (map[string]map[string]interface{}, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	sections := make(map[string]map[string]interface{}, len(doc))
	for section, raw := range doc {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section, err)
		}
		var sectionDoc map[string]interface{}
		if err := json.Unmarshal(encoded, &sectionDoc); err != nil {
			return nil, fmt.Errorf("section %s is not a JSON object", section)
		}
		sections[section] = sectionDoc
	}
	return sections, nil
}
