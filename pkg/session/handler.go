package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

const authDeadline = 10 * time.Second

// HandleConn runs one device connection's full lifecycle: the AUTH
// handshake, the single-active-connection supersede, the inbound read loop
// that maintains the durable snapshot, and the 90s idle timeout. It blocks
// until the connection ends and always leaves the registry consistent.
func (m *Manager) HandleConn(ctx context.Context, conn Conn) {
	sess, err := m.authenticate(ctx, conn)
	if err != nil {
		m.log.WithError(err).Warn("controlplaned: auth handshake failed")
		return
	}
	defer m.Detach(sess)

	m.readLoop(ctx, sess)
}

func (m *Manager) authenticate(ctx context.Context, conn Conn) (*DeviceSession, error) {
	_ = conn.SetReadDeadline(time.Now().Add(authDeadline))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	env, err := rpc.Decode(data)
	if err != nil {
		_ = conn.CloseWithStatus(CloseAuthFailed, "malformed auth frame")
		return nil, err
	}
	if env.Type != rpc.TypeAuth {
		_ = conn.CloseWithStatus(CloseAuthFailed, "first frame must be AUTH")
		return nil, util.NewAuthError("", "first frame was not AUTH")
	}

	var p rpc.AuthPayload
	if err := rpc.DecodePayload(env, &p); err != nil {
		_ = conn.CloseWithStatus(CloseAuthFailed, "malformed AUTH payload")
		return nil, err
	}

	identity, err := m.identity.Verify(ctx, p.DeviceID, p.APIKey)
	if err != nil {
		reply, rErr := rpc.NewReply(env.ID, rpc.TypeAuthFail, rpc.AuthFailPayload{Reason: "invalid credentials"})
		if rErr == nil {
			if data, mErr := rpc.Encode(reply); mErr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}
		_ = conn.CloseWithStatus(CloseAuthFailed, "invalid credentials")
		return nil, util.NewAuthError(p.DeviceID, "api_key does not match device_id")
	}

	sess := m.Attach(identity.DeviceID, identity.OwnerID, conn)

	reply, err := rpc.NewReply(env.ID, rpc.TypeAuthOK, rpc.AuthOKPayload{
		Success: true, ServerTime: time.Now().Unix(),
	})
	if err == nil {
		_ = sess.writeEnvelope(reply)
	}
	return sess, nil
}

func (m *Manager) readLoop(ctx context.Context, sess *DeviceSession) {
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		_ = sess.conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = sess.conn.CloseWithStatus(CloseIdle, "idle timeout")
			}
			return
		}
		sess.touch()

		env, decodeErr := rpc.Decode(data)
		if decodeErr != nil {
			var perr *util.ProtocolError
			if errors.As(decodeErr, &perr) && perr.FrameID != "" {
				_ = sess.writeEnvelope(rpc.NewErrorEnvelope(perr.FrameID, perr.Code, perr.Message))
			}
			continue
		}

		m.handleUpMessage(ctx, sess, env)
	}
}

func (m *Manager) handleUpMessage(ctx context.Context, sess *DeviceSession, env rpc.Envelope) {
	switch env.Type {
	case rpc.TypeStatus:
		var p rpc.StatusPayload
		if err := rpc.DecodePayload(env, &p); err == nil {
			_ = m.RecordStatus(ctx, sess.DeviceID, &p)
			reply, rErr := rpc.NewReply(env.ID, rpc.TypeStatusOK, rpc.StatusOKPayload{Received: time.Now().Unix()})
			if rErr == nil {
				_ = sess.writeEnvelope(reply)
			}
		}
	case rpc.TypeMetrics:
		_ = m.RecordStatus(ctx, sess.DeviceID, nil)
	case rpc.TypeConfigAck:
		var p rpc.ConfigAckPayload
		if err := rpc.DecodePayload(env, &p); err == nil {
			_ = m.RecordAppliedVersion(ctx, sess.DeviceID, p.Section, p.Version)
		}
	default:
		// EXEC_RESULT, CONFIG_FAIL, LOG, ALERT, PONG, MODE_ACK: observed and
		// forwarded to operator-facing surfaces outside this package's scope.
	}
}
