package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/meshbridge/routeragent/pkg/session"
)

// upgrader accepts an unauthenticated WebSocket; session.Manager.HandleConn
// performs the real AUTH handshake over the first frame. CheckOrigin is
// permissive because devices are not browsers and carry no Origin header
// trust model to enforce.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newDeviceUpgradeHandler builds the handler devices connect to: it upgrades
// the HTTP request to a WebSocket and hands the connection to manager for
// its entire lifecycle, blocking until the device disconnects.
func newDeviceUpgradeHandler(manager *session.Manager, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("controlplaned: websocket upgrade failed")
			return
		}
		manager.HandleConn(r.Context(), session.NewWSConn(conn))
	}
}
