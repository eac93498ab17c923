// Package audit provides audit logging for device session and config-apply
// activity.
package audit

import (
	"fmt"
	"time"

	"github.com/meshbridge/routeragent/pkg/rpc"
)

// Event represents an auditable session or config-apply event for one device.
type Event struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	DeviceID  string             `json:"device_id"`
	Operation string             `json:"operation"`
	Section   rpc.Section        `json:"section,omitempty"`
	Version   rpc.SectionVersion `json:"version,omitempty"`
	Changes   []rpc.Change       `json:"changes"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	Mode      rpc.Mode           `json:"mode,omitempty"`
	Duration  time.Duration      `json:"duration"`
	ClientIP  string             `json:"client_ip,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
}

// EventType categorizes audit events
type EventType string

const (
	EventTypeConnect    EventType = "connect"
	EventTypeDisconnect EventType = "disconnect"
	EventTypeSupersede  EventType = "supersede"
	EventTypeAuthFail   EventType = "auth_fail"
	EventTypeConfigPush EventType = "config_push"
	EventTypeConfigFull EventType = "config_full"
	EventTypeRollback   EventType = "rollback"
	EventTypeExec       EventType = "exec"
	EventTypeModeUpdate EventType = "mode_update"
)

// Severity indicates the importance of an audit event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events
type Filter struct {
	DeviceID    string
	Operation   string
	Section     rpc.Section
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(deviceID, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		DeviceID:  deviceID,
		Operation: operation,
	}
}

// WithSection sets the config section the event pertains to
func (e *Event) WithSection(section rpc.Section, ver rpc.SectionVersion) *Event {
	e.Section = section
	e.Version = ver
	return e
}

// WithChanges sets the diff changes produced by the operation
func (e *Event) WithChanges(changes []rpc.Change) *Event {
	e.Changes = changes
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithMode records the agent mode in effect when the event occurred
func (e *Event) WithMode(mode rpc.Mode) *Event {
	e.Mode = mode
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
