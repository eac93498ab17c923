package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type snapshotResponse struct {
	DeviceID        string                 `json:"device_id"`
	Online          bool                   `json:"online"`
	LastSeen        string                 `json:"last_seen"`
	LatestStatus    map[string]interface{} `json:"latest_status,omitempty"`
	AppliedVersions map[string]int         `json:"applied_versions,omitempty"`
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <device-id>",
		Short: "Show a device's durable last-known snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap snapshotResponse
			if err := getJSON(cmd.Context(), "/v1/devices/"+args[0]+"/snapshot", &snap); err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			online := "offline"
			if snap.Online {
				online = "online"
			}
			fmt.Printf("device_id:  %s\n", snap.DeviceID)
			fmt.Printf("status:     %s\n", online)
			fmt.Printf("last_seen:  %s\n", snap.LastSeen)
			for section, version := range snap.AppliedVersions {
				fmt.Printf("applied[%s]: v%d\n", section, version)
			}
			return nil
		},
	}
}
