package httpapi

import (
	"net/http"
	"time"

	"github.com/meshbridge/routeragent/pkg/auth"
	"github.com/meshbridge/routeragent/pkg/rpc"
)

// snapshotResponse is the GET snapshot endpoint's response body.
type snapshotResponse struct {
	DeviceID        string                             `json:"device_id"`
	Online          bool                               `json:"online"`
	LastSeen        time.Time                          `json:"last_seen"`
	LatestStatus    *rpc.StatusPayload                 `json:"latest_status,omitempty"`
	AppliedVersions map[rpc.Section]rpc.SectionVersion `json:"applied_versions,omitempty"`
}

// handleSnapshot serves GET /v1/devices/{device_id}/snapshot: the durable
// last_seen/latest_status/applied_versions snapshot pkg/session maintains,
// available even while the device is offline.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	checker, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.authorizeOwner(w, r, checker, deviceID) {
		return
	}
	if err := checker.Check(auth.PermSnapshotView, auth.NewContext().WithDevice(deviceID)); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}

	snap, found, err := s.manager.Snapshot(r.Context(), deviceID)
	if err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).Error("httpapi: snapshot load failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no snapshot recorded for this device")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		DeviceID:        snap.DeviceID,
		Online:          s.manager.IsOnline(deviceID),
		LastSeen:        snap.LastSeen,
		LatestStatus:    snap.LatestStatus,
		AppliedVersions: snap.AppliedVersions,
	})
}
