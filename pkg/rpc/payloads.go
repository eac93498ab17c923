package rpc

// Payload shapes for every frame type named in §4.1/§6. Each struct is the
// Go mirror of the JSON object carried in an Envelope's payload field.

// AuthPayload is the AUTH frame's payload.
type AuthPayload struct {
	DeviceID        string `json:"device_id"`
	APIKey          string `json:"api_key"`
	FirmwareVersion string `json:"firmware_version"`
}

// AuthOKPayload is the AUTH_OK reply.
type AuthOKPayload struct {
	Success    bool  `json:"success"`
	ServerTime int64 `json:"server_time"`
}

// AuthFailPayload is the AUTH_FAIL reply.
type AuthFailPayload struct {
	Reason string `json:"reason"`
}

// InterfaceStatus is one entry in a STATUS payload's interface list.
type InterfaceStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "up" | "down"
	IP      string `json:"ip,omitempty"`
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
	RxRate  uint64 `json:"rx_rate"`
	TxRate  uint64 `json:"tx_rate"`
}

// StatusPayload is the full-fidelity status snapshot: emitted once after
// AUTH_OK and on every STATUS_REQUEST.
type StatusPayload struct {
	Uptime      int64             `json:"uptime"`
	CPU         int               `json:"cpu"`
	Memory      int               `json:"memory"`
	Temperature *int              `json:"temperature,omitempty"`
	Load        [3]float64        `json:"load"`
	Interfaces  []InterfaceStatus `json:"interfaces"`
	Connections int               `json:"connections"`
	WANIP       string            `json:"wan_ip"`
	Firmware    string            `json:"firmware"`
}

// StatusOKPayload acknowledges a STATUS frame.
type StatusOKPayload struct {
	Received int64 `json:"received"`
}

// InterfaceRate is one entry in a METRICS payload's interface map: rates
// only, no cumulative totals.
type InterfaceRate struct {
	RxRate uint64 `json:"rx_rate"`
	TxRate uint64 `json:"tx_rate"`
}

// ConnectionCounts splits connection totals by protocol.
type ConnectionCounts struct {
	Total int `json:"total"`
	TCP   int `json:"tcp"`
	UDP   int `json:"udp"`
}

// DNSCounters is the DNS-resolver counter subset of METRICS.
type DNSCounters struct {
	Queries int `json:"queries"`
	Blocked int `json:"blocked"`
	Cached  int `json:"cached"`
}

// MetricsPayload is the lightweight, high-frequency telemetry tick.
type MetricsPayload struct {
	Timestamp   int64                    `json:"timestamp"`
	CPU         int                      `json:"cpu"`
	Memory      int                      `json:"memory"`
	Temperature *int                     `json:"temperature,omitempty"`
	Interfaces  map[string]InterfaceRate `json:"interfaces"`
	Connections ConnectionCounts         `json:"connections"`
	DNS         DNSCounters              `json:"dns"`
}

// ConfigPushPayload pushes one section's document at a specific version.
type ConfigPushPayload struct {
	Section Section         `json:"section"`
	Version SectionVersion  `json:"version"`
	Document map[string]interface{} `json:"document"`
}

// ConfigFullPayload pushes a coordinated multi-section batch.
type ConfigFullPayload struct {
	Sections map[Section]map[string]interface{} `json:"sections"`
	Version  SectionVersion                     `json:"version"`
}

// ConfigAckPayload acknowledges a CONFIG_PUSH or one section of a
// CONFIG_FULL. Diff is empty when the push was an idempotent no-op.
type ConfigAckPayload struct {
	Section Section    `json:"section"`
	Version SectionVersion `json:"version"`
	Diff    ConfigDiff `json:"diff"`
}

// ConfigFailPayload reports a validation or apply failure.
type ConfigFailPayload struct {
	Section Section           `json:"section"`
	Version SectionVersion    `json:"version"`
	Step    string            `json:"step,omitempty"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
	Message string            `json:"message,omitempty"`
}

// ExecPayload requests execution of an allow-listed command.
type ExecPayload struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	TimeoutSec int      `json:"timeout_sec"`
}

// ExecResultPayload reports the outcome of an EXEC frame, or a
// scheduled-action acknowledgment for REBOOT/UPGRADE.
type ExecResultPayload struct {
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Scheduled bool   `json:"scheduled,omitempty"`
}

// RebootPayload schedules a reboot, optionally after a delay.
type RebootPayload struct {
	DelaySec int `json:"delay_sec,omitempty"`
}

// UpgradePayload schedules a firmware upgrade to a named target version.
// Packaging/delivery of the firmware image itself is out of scope.
type UpgradePayload struct {
	TargetVersion string `json:"target_version"`
}

// LogPayload is a fire-and-forget operator-visible log line.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AlertPayload is a fire-and-forget safety-relevant notification, e.g. a
// rollback failure leaving the device in a degraded state.
type AlertPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ModeUpdatePayload atomically swaps the agent's mode. An empty Section
// updates the agent-wide default instead of installing a section override.
type ModeUpdatePayload struct {
	Section Section `json:"section,omitempty"`
	Mode    Mode    `json:"mode"`
}

// ModeAckPayload acknowledges a MODE_UPDATE.
type ModeAckPayload struct {
	Section Section `json:"section,omitempty"`
	Mode    Mode    `json:"mode"`
}
