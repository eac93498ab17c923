package adapter

import "github.com/meshbridge/routeragent/pkg/rpc"

// IssueBuilder accumulates rpc.ValidationIssue values across a Validate call.
// It mirrors util.ValidationBuilder's accumulate-then-inspect shape but
// carries the path/severity/code structure CONFIG_FAIL needs on the wire,
// rather than util.ValidationBuilder's flat string list.
type IssueBuilder struct {
	issues []rpc.ValidationIssue
}

// Require appends an error-severity issue at path if ok is false.
func (b *IssueBuilder) Require(ok bool, path, code, message string) {
	if !ok {
		b.issues = append(b.issues, rpc.ValidationIssue{
			Path: path, Severity: rpc.SeverityError, Code: code, Message: message,
		})
	}
}

// Warn appends a warning-severity issue at path if ok is false. Warnings
// never block Apply the way an error-severity issue does. CONFIG_ACK does
// not carry them, so a successful apply sends no warnings on the wire.
func (b *IssueBuilder) Warn(ok bool, path, code, message string) {
	if !ok {
		b.issues = append(b.issues, rpc.ValidationIssue{
			Path: path, Severity: rpc.SeverityWarning, Code: code, Message: message,
		})
	}
}

// Issues returns the accumulated issues, or nil if none were recorded.
func (b *IssueBuilder) Issues() []rpc.ValidationIssue {
	return b.issues
}
