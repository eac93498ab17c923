package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// rebootAction performs a scheduled reboot after delaySec, run in its own
// goroutine by the dispatcher after the EXEC_RESULT{scheduled:true}
// acknowledgment has already been sent.
func rebootAction(ctx context.Context, delaySec int) error {
	if delaySec > 0 {
		select {
		case <-time.After(time.Duration(delaySec) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return exec.Command("systemctl", "reboot").Run()
}

// upgradeAction fetches and installs the named firmware target version.
// Image packaging/delivery is out of scope; this assumes the image is
// already staged locally under the target version's name.
func upgradeAction(ctx context.Context, targetVersion string) error {
	if err := exec.CommandContext(ctx, "router-agent-stage-firmware", targetVersion).Run(); err != nil {
		return fmt.Errorf("stage firmware %s: %w", targetVersion, err)
	}
	return exec.Command("systemctl", "reboot").Run()
}
