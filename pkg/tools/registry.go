package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/askdb/askdb/pkg/oracle"
)

// ErrCapabilityMissing is returned by Grant when a requested capability was
// never registered. Callers must treat it as fatal for the request: a stage
// cannot run without the capabilities its directive assumes.
var ErrCapabilityMissing = errors.New("capability not registered")

// Capability is a narrowly scoped action that can be granted to the oracle
// for a bounded tool-calling loop.
type Capability struct {
	Tool oracle.Tool
	Run  func(ctx context.Context, args map[string]any) (result string, isError bool, err error)
}

// Registry holds the capabilities available to pipeline stages. It is
// constructed once at startup; stages receive fixed subsets via Grant.
type Registry struct {
	log  *slog.Logger
	caps map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:  log,
		caps: make(map[string]Capability),
	}
}

// Register adds capabilities to the registry. Registering the same name
// twice replaces the earlier entry.
func (r *Registry) Register(caps ...Capability) {
	for _, c := range caps {
		r.caps[c.Tool.Name] = c
	}
}

// Grant returns a ToolClient limited to the named capabilities. It fails
// fast when any name is absent, rather than degrading at call time.
func (r *Registry) Grant(names ...string) (oracle.ToolClient, error) {
	for _, name := range names {
		if _, ok := r.caps[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityMissing, name)
		}
	}
	return &grant{reg: r, names: names}, nil
}

// grant is a fixed subset of the registry exposed as an oracle.ToolClient.
type grant struct {
	reg   *Registry
	names []string
}

// ListTools returns the granted tools in grant order.
func (g *grant) ListTools(ctx context.Context) ([]oracle.Tool, error) {
	out := make([]oracle.Tool, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.reg.caps[name].Tool)
	}
	return out, nil
}

// CallToolText dispatches a tool call to the matching capability. Calls to
// tools outside the grant are reported back to the model as errors.
func (g *grant) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	granted := false
	for _, n := range g.names {
		if n == name {
			granted = true
			break
		}
	}
	if !granted {
		return fmt.Sprintf("unknown tool: %s", name), true, nil
	}

	cap := g.reg.caps[name]
	if g.reg.log != nil {
		g.reg.log.Debug("registry: calling capability", "name", name)
	}
	return cap.Run(ctx, args)
}
