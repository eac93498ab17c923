package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meshbridge/routeragent/pkg/auth"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// directiveRequest is the POST directives body. Kind selects which of the
// optional payload fields applies; unused fields are ignored.
type directiveRequest struct {
	Kind string `json:"kind"`

	Section  rpc.Section                            `json:"section,omitempty"`
	Version  rpc.SectionVersion                     `json:"version,omitempty"`
	Document map[string]interface{}                 `json:"document,omitempty"`
	Sections map[rpc.Section]map[string]interface{} `json:"sections,omitempty"`

	Command    string   `json:"command,omitempty"`
	Args       []string `json:"args,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"`

	DelaySec int `json:"delay_sec,omitempty"`

	TargetVersion string `json:"target_version,omitempty"`

	Mode rpc.Mode `json:"mode,omitempty"`
}

const (
	kindConfigPush = "CONFIG_PUSH"
	kindConfigFull = "CONFIG_FULL"
	kindExec       = "EXEC"
	kindReboot     = "REBOOT"
	kindUpgrade    = "UPGRADE"
	kindModeUpdate = "MODE_UPDATE"
)

// directiveEnvelope builds the outbound envelope and the permission it
// requires, for req.Kind. An empty permission/envelope pair with a non-nil
// error means req.Kind was not one of the six supported directives.
func directiveEnvelope(req directiveRequest) (rpc.Envelope, auth.Permission, error) {
	switch req.Kind {
	case kindConfigPush:
		env, err := rpc.NewEnvelope(rpc.TypeConfigPush, rpc.ConfigPushPayload{
			Section: req.Section, Version: req.Version, Document: req.Document,
		})
		return env, auth.PermDirectiveConfigPush, err
	case kindConfigFull:
		env, err := rpc.NewEnvelope(rpc.TypeConfigFull, rpc.ConfigFullPayload{
			Sections: req.Sections, Version: req.Version,
		})
		return env, auth.PermDirectiveConfigFull, err
	case kindExec:
		env, err := rpc.NewEnvelope(rpc.TypeExec, rpc.ExecPayload{
			Command: req.Command, Args: req.Args, TimeoutSec: req.TimeoutSec,
		})
		return env, auth.PermDirectiveExec, err
	case kindReboot:
		env, err := rpc.NewEnvelope(rpc.TypeReboot, rpc.RebootPayload{DelaySec: req.DelaySec})
		return env, auth.PermDirectiveReboot, err
	case kindUpgrade:
		env, err := rpc.NewEnvelope(rpc.TypeUpgrade, rpc.UpgradePayload{TargetVersion: req.TargetVersion})
		return env, auth.PermDirectiveUpgrade, err
	case kindModeUpdate:
		env, err := rpc.NewEnvelope(rpc.TypeModeUpdate, rpc.ModeUpdatePayload{
			Section: req.Section, Mode: req.Mode,
		})
		return env, auth.PermModeUpdate, err
	default:
		return rpc.Envelope{}, "", errors.New("unsupported directive kind")
	}
}

// handleDirective serves POST /v1/devices/{device_id}/directives: it
// authorizes the operator for the directive's permission, builds the
// corresponding down-message envelope, and delivers it to the device's
// live session. A device with no attached WebSocket fails closed with 503
// DEVICE_OFFLINE; directives are never queued for later delivery.
func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	checker, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.authorizeOwner(w, r, checker, deviceID) {
		return
	}

	var req directiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED", "invalid request body")
		return
	}

	env, perm, err := directiveEnvelope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED", err.Error())
		return
	}

	permCtx := auth.NewContext().WithDevice(deviceID)
	if req.Section != "" {
		permCtx = permCtx.WithSection(string(req.Section))
	}
	if err := checker.Check(perm, permCtx); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	if err := s.manager.Deliver(r.Context(), deviceID, env); err != nil {
		var sessErr *util.SessionError
		if errors.As(err, &sessErr) && sessErr.Reason == "DEVICE_OFFLINE" {
			writeError(w, http.StatusServiceUnavailable, "DEVICE_OFFLINE", "device has no attached session")
			return
		}
		s.log.WithError(err).WithField("device_id", deviceID).Error("httpapi: directive delivery failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to deliver directive")
		return
	}

	writeJSON(w, http.StatusAccepted, directiveAccepted{ID: env.ID, Kind: req.Kind})
}

type directiveAccepted struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}
