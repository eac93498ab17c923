package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/meshbridge/routeragent/pkg/util"
)

// MessageType names one of the closed set of up-message or down-message
// frame types. The zero value is not a valid type.
type MessageType string

// Up-messages: agent -> control plane.
const (
	TypeAuth        MessageType = "AUTH"
	TypeStatus      MessageType = "STATUS"
	TypeMetrics     MessageType = "METRICS"
	TypeConfigAck   MessageType = "CONFIG_ACK"
	TypeConfigFail  MessageType = "CONFIG_FAIL"
	TypeExecResult  MessageType = "EXEC_RESULT"
	TypeLog         MessageType = "LOG"
	TypeAlert       MessageType = "ALERT"
	TypePong        MessageType = "PONG"
	TypeModeAck     MessageType = "MODE_ACK"
)

// Down-messages: control plane -> agent.
const (
	TypeConfigPush   MessageType = "CONFIG_PUSH"
	TypeConfigFull   MessageType = "CONFIG_FULL"
	TypeExec         MessageType = "EXEC"
	TypeReboot       MessageType = "REBOOT"
	TypeUpgrade      MessageType = "UPGRADE"
	TypeStatusReq    MessageType = "STATUS_REQUEST"
	TypePing         MessageType = "PING"
	TypeModeUpdate   MessageType = "MODE_UPDATE"
)

// Server replies to AUTH; listed separately since they are agent-directed
// but not emitted by the agent itself.
const (
	TypeAuthOK     MessageType = "AUTH_OK"
	TypeAuthFail   MessageType = "AUTH_FAIL"
	TypeStatusOK   MessageType = "STATUS_OK"
	TypeError      MessageType = "ERROR"
)

var upMessageTypes = map[MessageType]struct{}{
	TypeAuth: {}, TypeStatus: {}, TypeMetrics: {}, TypeConfigAck: {},
	TypeConfigFail: {}, TypeExecResult: {}, TypeLog: {}, TypeAlert: {},
	TypePong: {}, TypeModeAck: {},
}

var downMessageTypes = map[MessageType]struct{}{
	TypeConfigPush: {}, TypeConfigFull: {}, TypeExec: {}, TypeReboot: {},
	TypeUpgrade: {}, TypeStatusReq: {}, TypePing: {}, TypeModeUpdate: {},
}

var serverReplyTypes = map[MessageType]struct{}{
	TypeAuthOK: {}, TypeAuthFail: {}, TypeStatusOK: {}, TypeError: {},
}

// IsUpMessage reports whether t is a frame type the agent emits.
func IsUpMessage(t MessageType) bool {
	_, ok := upMessageTypes[t]
	return ok
}

// IsDownMessage reports whether t is a frame type the control plane emits.
func IsDownMessage(t MessageType) bool {
	_, ok := downMessageTypes[t]
	return ok
}

// IsKnown reports whether t belongs to any closed set the codec recognizes.
// Unknown types are the codec's fail-closed case.
func IsKnown(t MessageType) bool {
	if IsUpMessage(t) || IsDownMessage(t) {
		return true
	}
	_, ok := serverReplyTypes[t]
	return ok
}

// Envelope is the `{id, type, payload}` frame every RPC message is carried
// in. Payload is kept as raw JSON so Decode can validate the frame shape
// before any caller attempts to interpret the type-specific payload.
type Envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh v4 UUID id, marshaling payload
// to JSON.
func NewEnvelope(t MessageType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %s: %w", t, err)
	}
	return Envelope{ID: uuid.NewString(), Type: t, Payload: raw}, nil
}

// NewReply builds an envelope that echoes requestID, as required of every
// response to a request-bearing frame.
func NewReply(requestID string, t MessageType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %s: %w", t, err)
	}
	return Envelope{ID: requestID, Type: t, Payload: raw}, nil
}

// Encode serializes an envelope to the UTF-8 JSON wire form.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw wire bytes into an Envelope. It fails closed: a decode
// error, an empty id, or an unrecognized type all return a ProtocolError
// instead of a partially-populated Envelope, so callers never need to
// re-check Type membership themselves.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, util.NewProtocolError("", "BAD_JSON", err.Error())
	}
	if e.ID == "" {
		return Envelope{}, util.NewProtocolError(e.ID, "MALFORMED", "missing id")
	}
	if e.Type == "" {
		return Envelope{}, util.NewProtocolError(e.ID, "MALFORMED", "missing type")
	}
	if !IsKnown(e.Type) {
		return Envelope{}, util.NewProtocolError(e.ID, "UNKNOWN_TYPE", string(e.Type))
	}
	return e, nil
}

// DecodePayload unmarshals e's payload into dst, validating it against
// dst's shape. A schema mismatch is reported as MALFORMED, matching §4.1's
// "validation failure yields ERROR with code=MALFORMED and no side effect".
func DecodePayload(e Envelope, dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return util.NewProtocolError(e.ID, "MALFORMED", err.Error())
	}
	return nil
}

// ErrorPayload is the payload of an ERROR frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEnvelope builds the fail-closed ERROR reply for requestID. Per
// §4.1, responders must echo the request's id and not advance any state
// machine when emitting it.
func NewErrorEnvelope(requestID, code, message string) Envelope {
	raw, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{ID: requestID, Type: TypeError, Payload: raw}
}
