// Package rpc implements the wire envelope and shared data model for the
// Router Agent session contract: the frame format, the two closed message
// taxonomies, and the types that travel inside CONFIG_* and STATUS/METRICS
// payloads.
package rpc

import (
	"fmt"

	"github.com/meshbridge/routeragent/pkg/redact"
)

// Section names a configuration section. The set is closed; adapters are
// registered against one of these names and CONFIG_FULL batches apply them
// in DependencyOrder.
type Section string

const (
	SectionSystem    Section = "system"
	SectionDNS       Section = "dns"
	SectionDHCP      Section = "dhcp"
	SectionWAN       Section = "wan"
	SectionLAN       Section = "lan"
	SectionWiFi      Section = "wifi"
	SectionFirewall  Section = "firewall"
	SectionNAT       Section = "nat"
	SectionQoS       Section = "qos"
	SectionIDS       Section = "ids"
	SectionDDNS      Section = "ddns"
	SectionVPNServer Section = "vpn_server"
	SectionVPNClient Section = "vpn_client"
)

// DependencyOrder is the static DAG, flattened to a total order, that
// CONFIG_FULL batches must apply in. Rollback on mid-batch failure walks
// this slice in reverse from the last successfully applied section.
var DependencyOrder = []Section{
	SectionSystem,
	SectionDNS,
	SectionDHCP,
	SectionWAN,
	SectionLAN,
	SectionWiFi,
	SectionFirewall,
	SectionNAT,
	SectionQoS,
	SectionIDS,
	SectionVPNServer,
	SectionVPNClient,
}

func (s Section) valid() bool {
	for _, known := range DependencyOrder {
		if s == known {
			return true
		}
	}
	return s == SectionDDNS
}

// SectionVersion is the monotonic per-(device_id, section) counter the
// server assigns. An agent must refuse to apply a version it has already
// acknowledged.
type SectionVersion uint64

// DiffOp names a single ConfigDiff operation.
type DiffOp string

const (
	DiffOpSet    DiffOp = "set"
	DiffOpUnset  DiffOp = "unset"
	DiffOpInsert DiffOp = "insert"
	DiffOpRemove DiffOp = "remove"
)

// Change is one entry in a ConfigDiff's ordered change list.
type Change struct {
	Path   string      `json:"path"`
	Op     DiffOp      `json:"op"`
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// ConfigDiff is the structured result of an adapter's Diff call: a stable,
// canonically-ordered change list plus side-effect hints the dispatcher
// uses to decide which services need restarting.
type ConfigDiff struct {
	Changes         []Change `json:"changes"`
	RequiresRestart bool     `json:"requires_restart"`
	ServicesTouched []string `json:"services_touched,omitempty"`
}

// IsEmpty reports whether the diff carries no changes, i.e. diff(x,x).
func (d ConfigDiff) IsEmpty() bool {
	return len(d.Changes) == 0
}

// Severity classifies a ValidationIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is one finding from an adapter's Validate call. A
// document is valid iff no issue carries SeverityError.
type ValidationIssue struct {
	Path     string   `json:"path"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any issue in issues is an error-severity issue.
func HasErrors(issues []ValidationIssue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Mode is the per-section enforcement policy communicated by MODE_UPDATE
// and resolved once per dispatch by the adapter/modewrap decorator.
type Mode string

const (
	ModeObserve  Mode = "observe"
	ModeShadow   Mode = "shadow"
	ModeTakeover Mode = "takeover"
)

// Valid reports whether m is one of the three recognized modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeObserve, ModeShadow, ModeTakeover:
		return true
	default:
		return false
	}
}

// AgentMode is the agent-wide default mode plus any per-section overrides.
type AgentMode struct {
	Default   Mode            `json:"default"`
	Overrides map[Section]Mode `json:"overrides,omitempty"`
}

// Resolve returns the effective mode for section: the override if present,
// otherwise the agent default.
func (a AgentMode) Resolve(section Section) Mode {
	if m, ok := a.Overrides[section]; ok {
		return m
	}
	return a.Default
}

// DeviceIdentity is the immutable provisioning tuple an agent reads from
// its local configuration file.
type DeviceIdentity struct {
	DeviceID string `json:"device_id"`
	APIKey   string `json:"api_key"`
}

func (d DeviceIdentity) String() string {
	return fmt.Sprintf("DeviceIdentity{device_id: %s, api_key: %s}", d.DeviceID, redact.Marker)
}
