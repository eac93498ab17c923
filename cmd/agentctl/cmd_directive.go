package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// directiveRequest mirrors pkg/session/httpapi's directiveRequest body.
type directiveRequest struct {
	Kind string `json:"kind"`

	Section  string                            `json:"section,omitempty"`
	Version  uint64                            `json:"version,omitempty"`
	Document map[string]interface{}            `json:"document,omitempty"`
	Sections map[string]map[string]interface{} `json:"sections,omitempty"`

	Command    string   `json:"command,omitempty"`
	Args       []string `json:"args,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`

	DelaySec int `json:"delay_sec,omitempty"`

	TargetVersion string `json:"target_version,omitempty"`

	Mode string `json:"mode,omitempty"`
}

type directiveAccepted struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func postDirective(cmd *cobra.Command, deviceID string, req directiveRequest) error {
	var accepted directiveAccepted
	err := postJSON(cmd.Context(), "/v1/devices/"+deviceID+"/directives", req, &accepted)
	if err != nil {
		return err
	}
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(accepted)
	}
	fmt.Printf("accepted %s id=%s\n", accepted.Kind, accepted.ID)
	return nil
}
