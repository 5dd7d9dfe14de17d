package scenario

import (
	"sync"

	"github.com/agent-sandbox/go-sandbox/pkg/errors"
)

// Registry holds the available scenarios in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]Scenario
	runtimes map[string]Runtime
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  map[string]Scenario{},
		runtimes: map[string]Runtime{},
	}
}

// Register adds or replaces a scenario.
func (r *Registry) Register(sc Scenario, rt Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[sc.Name]; !exists {
		r.order = append(r.order, sc.Name)
	}
	r.entries[sc.Name] = sc
	r.runtimes[sc.Name] = rt
}

// List returns scenarios in registration order.
func (r *Registry) List() []Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scenario, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Lookup resolves a scenario's runtime by name.
func (r *Registry) Lookup(name string) (Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[name]
	if !ok {
		return nil, errors.Newf("Registry.Lookup", "unknown scenario %q", name)
	}
	return rt, nil
}

// Has reports whether a scenario name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// DefaultRegistry builds the built-in scenario set. When endpoint is
// non-empty an additional proxy scenario forwards to the live upstream
// agent instead of the scripted runtimes.
func DefaultRegistry(endpoint string) *Registry {
	r := NewRegistry()
	r.Register(Scenario{
		Name:        "chat",
		Title:       "Basic Chat",
		Description: "Plain streaming conversation with no tools.",
	}, newChatRuntime())
	r.Register(Scenario{
		Name:        "customer-support",
		Title:       "Customer Support Tools",
		Description: "The agent looks up customer records with a tool call.",
	}, newToolRuntime())
	r.Register(Scenario{
		Name:        "email-approval",
		Title:       "Email with Approval",
		Description: "Sending email pauses for human approval, rejection or editing.",
	}, newApprovalRuntime())
	r.Register(Scenario{
		Name:        "summarization",
		Title:       "Context Summarization",
		Description: "Long conversations are compacted with an inline summary.",
	}, newSummaryRuntime())
	if endpoint != "" {
		r.Register(Scenario{
			Name:        "live",
			Title:       "Live Agent",
			Description: "Proxy to the configured upstream agent endpoint.",
		}, NewProxyRuntime(endpoint, nil))
	}
	return r
}
