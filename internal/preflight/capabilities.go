package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/3cpo-dev/iptvrun/pkg/api"
)

// Capability is a library the collection scripts cannot run without.
type Capability struct {
	Name   string
	Module string
}

// DefaultCapabilities returns the required set, in reporting order.
func DefaultCapabilities() []Capability {
	return []Capability{
		{Name: "http-client", Module: "requests"},
		{Name: "html-parser", Module: "bs4"},
		{Name: "image-processing", Module: "cv2"},
		{Name: "playlist-parser", Module: "m3u8"},
		{Name: "numeric-array", Module: "numpy"},
		{Name: "database-driver", Module: "mysql.connector"},
	}
}

// Resolver decides whether a capability is available.
type Resolver interface {
	Resolve(ctx context.Context, c Capability) error
}

// InterpreterResolver asks the task interpreter to import the capability's module.
type InterpreterResolver struct {
	Interpreter string
	Timeout     time.Duration
}

func (r InterpreterResolver) Resolve(ctx context.Context, c Capability) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.Interpreter, "-c", "import "+c.Module)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := lastLine(string(out)); msg != "" {
			return fmt.Errorf("import %s: %s", c.Module, msg)
		}
		return fmt.Errorf("import %s: %w", c.Module, err)
	}
	return nil
}

// CheckCapabilities probes every capability once and reports each outcome.
func CheckCapabilities(ctx context.Context, r Resolver, caps []Capability) []api.CapabilityStatus {
	out := make([]api.CapabilityStatus, 0, len(caps))
	for _, c := range caps {
		st := api.CapabilityStatus{Name: c.Name, Module: c.Module}
		if err := r.Resolve(ctx, c); err != nil {
			st.Detail = err.Error()
		} else {
			st.Resolved = true
		}
		out = append(out, st)
	}
	return out
}

// Missing returns the names of unresolved capabilities.
func Missing(statuses []api.CapabilityStatus) []string {
	var names []string
	for _, st := range statuses {
		if !st.Resolved {
			names = append(names, st.Name)
		}
	}
	return names
}

// CapabilityError reports unresolved capabilities.
type CapabilityError struct {
	Missing []string
}

func (e *CapabilityError) Error() string {
	return "missing capabilities: " + strings.Join(e.Missing, ", ")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
