// Package brokerregistry holds the static broker/exchange capability map
// plus runtime health state. Readers (the router) see a consistent snapshot
// per decision via atomic pointer swap; updates from the scheduler's
// health probe never block a concurrent read.
package brokerregistry

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
)

// snapshot is the immutable value swapped atomically on every update.
type snapshot struct {
	statuses map[string]domain.BrokerStatus
}

// Registry holds the static broker/exchange capability table (from Config)
// plus the mutable runtime health snapshot.
type Registry struct {
	brokers map[string]config.BrokerSettings
	current atomic.Pointer[snapshot]
}

// New builds a registry from the static broker table, seeding every broker
// as CONNECTED with a full health score until the first probe runs.
func New(brokers map[string]config.BrokerSettings) *Registry {
	statuses := make(map[string]domain.BrokerStatus, len(brokers))
	now := time.Now()
	for name := range brokers {
		statuses[name] = domain.BrokerStatus{
			BrokerName:    name,
			Connection:    domain.ConnConnected,
			HealthScore:   100,
			LastHeartbeat: now,
		}
	}
	r := &Registry{brokers: brokers}
	r.current.Store(&snapshot{statuses: statuses})
	return r
}

// BrokersForExchange returns the brokers capable of serving exchange, in a
// deterministic order (sorted by name) so routing ties break consistently.
func (r *Registry) BrokersForExchange(exchange domain.Exchange) []string {
	var names []string
	for name, b := range r.brokers {
		for _, ex := range b.Exchanges {
			if ex == string(exchange) {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// Settings returns the static settings for a broker.
func (r *Registry) Settings(broker string) (config.BrokerSettings, bool) {
	s, ok := r.brokers[broker]
	return s, ok
}

// Status returns a broker's current runtime status snapshot.
func (r *Registry) Status(broker string) (domain.BrokerStatus, bool) {
	snap := r.current.Load()
	s, ok := snap.statuses[broker]
	return s, ok
}

// UpdateStatus atomically replaces one broker's status, copy-on-write over
// the whole snapshot so concurrent readers never observe a torn update.
func (r *Registry) UpdateStatus(status domain.BrokerStatus) {
	old := r.current.Load()
	next := make(map[string]domain.BrokerStatus, len(old.statuses))
	for k, v := range old.statuses {
		next[k] = v
	}
	next[status.BrokerName] = status
	r.current.Store(&snapshot{statuses: next})
}

// Usable reports whether a broker is currently fit for routing: connected
// or degraded (not disconnected/maintenance) with a non-zero health score.
func (r *Registry) Usable(broker string) bool {
	s, ok := r.Status(broker)
	if !ok {
		return false
	}
	if s.Connection == domain.ConnDisconnected || s.Connection == domain.ConnMaintenance {
		return false
	}
	return s.HealthScore > 0
}
