package health

import (
	"sort"
	"sync"
	"time"
)

// Probe reports a component's current health on demand.
type Probe func() Status

// Monitor tracks pushed statuses and pull probes. Safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		probes:   make(map[string]Probe),
	}
}

// Update records a pushed status under name.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.statuses[name] = status
	m.mu.Unlock()
}

// Register installs a probe evaluated on every Report. A probe replaces a
// pushed status of the same name.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	m.probes[name] = probe
	delete(m.statuses, name)
	m.mu.Unlock()
}

// Remove drops both the pushed status and the probe for name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	delete(m.probes, name)
	m.mu.Unlock()
}

// Get returns the current status for name, running its probe if any.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	probe, isProbe := m.probes[name]
	status, ok := m.statuses[name]
	m.mu.RUnlock()

	if isProbe {
		return m.run(name, probe), true
	}
	return status, ok
}

// Report aggregates every component, sorted by name, into one system status.
func (m *Monitor) Report(system string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.statuses)+len(m.probes))
	pushed := make(map[string]Status, len(m.statuses))
	for name, s := range m.statuses {
		names = append(names, name)
		pushed[name] = s
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, p := range m.probes {
		names = append(names, name)
		probes[name] = p
	}
	m.mu.RUnlock()

	sort.Strings(names)
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		if p, ok := probes[name]; ok {
			subs = append(subs, m.run(name, p))
			continue
		}
		subs = append(subs, pushed[name])
	}
	return Aggregate(system, subs)
}

func (m *Monitor) run(name string, probe Probe) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			status = Unhealthy(name, "health probe panicked")
		}
	}()
	status = probe()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
