// Package process runs named backend processes (record actions) through
// registered handlers.
package process

import (
	"context"
	"fmt"
	"strings"
)

// Process statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Process is a request to run a backend action and, after Run, its outcome.
type Process struct {
	ID       string                 `json:"id,omitempty"`
	Type     string                 `json:"type"`
	Status   string                 `json:"status,omitempty"`
	Async    bool                   `json:"async"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Messages []string               `json:"messages"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Fail marks the process as failed with a single message key.
func (p *Process) Fail(message string) {
	p.Status = StatusError
	p.Messages = []string{message}
}

// Succeed marks the process as successful with a single message key.
func (p *Process) Succeed(message string, data map[string]interface{}) {
	p.Status = StatusSuccess
	p.Messages = []string{message}
	p.Data = data
}

// Option returns the string form of an option, or "" when it is unset.
func (p *Process) Option(key string) string {
	if p == nil || p.Options == nil {
		return ""
	}
	switch v := p.Options[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ACL is a single access requirement on a record.
type ACL struct {
	Action string `json:"action"`
	Record string `json:"record"`
}

// Handler implements one process type.
type Handler interface {
	HandlerKey() string
	ProcessType() string
	RequiredAuthRole() string
	// RequiredACLs returns the ACLs keyed by module that the caller must hold.
	RequiredACLs(p *Process) map[string][]ACL
	Configure(p *Process)
	Validate(p *Process) error
	// Run executes the process. Business failures are recorded on the
	// process; a returned error means the process could not be completed.
	Run(ctx context.Context, p *Process) error
}

// AccessChecker authorizes a caller for a handler's role and ACLs.
type AccessChecker interface {
	Check(ctx context.Context, role string, acls map[string][]ACL) error
}

// AccessCheckerFunc adapts a function to AccessChecker.
type AccessCheckerFunc func(ctx context.Context, role string, acls map[string][]ACL) error

// Check calls f.
func (f AccessCheckerFunc) Check(ctx context.Context, role string, acls map[string][]ACL) error {
	return f(ctx, role, acls)
}
