package observability

import (
	"sort"
	"sync"

	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
)

// Registry hands out one Monitor per agent name.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates a registry whose monitors share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		monitors: make(map[string]*Monitor),
	}
}

// Monitor returns the agent's monitor, creating it on first use. The department of the
// first call sticks; a later call naming another department gets the existing monitor
// and a warning is logged.
func (r *Registry) Monitor(agent, department string) (*Monitor, error) {
	if agent == "" {
		return nil, domainerrors.ErrAgentNameRequired
	}

	r.mu.Lock()
	m, ok := r.monitors[agent]
	if !ok {
		m = NewMonitor(agent, department, r.cfg)
		r.monitors[agent] = m
	}
	r.mu.Unlock()

	if ok && department != "" && department != m.department {
		r.cfg.Logger.Warn("department mismatch; execution attributed to the existing department",
			"agent_name", agent,
			"department_name", m.department,
			"requested_department", department,
		)
	}
	return m, nil
}

// Agents returns the agent names with a monitor, sorted.
func (r *Registry) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.monitors))
	for name := range r.monitors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
