// Package auth provides permission-based access control for the REST
// control-plane API that fronts device sessions.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermSnapshotView Permission = "snapshot.view"

	PermDirectiveConfigPush Permission = "directive.config_push"
	PermDirectiveConfigFull Permission = "directive.config_full"
	PermDirectiveExec       Permission = "directive.exec"
	PermDirectiveReboot     Permission = "directive.reboot"
	PermDirectiveUpgrade    Permission = "directive.upgrade"

	PermModeUpdate Permission = "mode.update"

	PermDeviceRegister   Permission = "device.register"
	PermDeviceDisconnect Permission = "device.disconnect"

	PermAuditView Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "snapshot",
		Description: "Device state snapshot access",
		Permissions: []Permission{PermSnapshotView},
	},
	{
		Name:        "directive",
		Description: "Directives delivered to a device session",
		Permissions: []Permission{
			PermDirectiveConfigPush, PermDirectiveConfigFull,
			PermDirectiveExec, PermDirectiveReboot, PermDirectiveUpgrade,
		},
	},
	{
		Name:        "mode",
		Description: "Per-section enforcement mode control",
		Permissions: []Permission{PermModeUpdate},
	},
	{
		Name:        "device",
		Description: "Device registration and session control",
		Permissions: []Permission{PermDeviceRegister, PermDeviceDisconnect},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
}

// Policy is the access-control policy a Checker enforces: superusers bypass
// all checks, UserGroups maps a group name to its member usernames, and
// Permissions/DevicePermissions map a permission (or the "all" wildcard)
// to the groups or usernames granted it, globally or scoped to one device.
type Policy struct {
	SuperUsers        []string                        `yaml:"super_users,omitempty"`
	UserGroups        map[string][]string             `yaml:"user_groups,omitempty"`
	Permissions       map[string][]string             `yaml:"permissions,omitempty"`
	DevicePermissions map[string]map[string][]string `yaml:"device_permissions,omitempty"`
}

// Context provides context for permission checks
type Context struct {
	DeviceID string
	Section  string
}

// NewContext creates a new permission context
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context
func (c *Context) WithDevice(deviceID string) *Context {
	c.DeviceID = deviceID
	return c
}

// WithSection sets the config section context
func (c *Context) WithSection(section string) *Context {
	c.Section = section
	return c
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermSnapshotView, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission delivers a directive that
// mutates device state or session behavior
func (p Permission) IsWriteOperation() bool {
	return !p.IsReadOnly() && p != PermDeviceRegister
}
