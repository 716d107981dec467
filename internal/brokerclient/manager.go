package brokerclient

import (
	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/ports"
)

// Manager owns one Client per configured broker and is the lookup the
// lifecycle engine and scheduler use to reach a named broker's connection.
type Manager struct {
	clients map[string]*Client
}

// NewManager builds a client for every broker in cfg.Brokers.
func NewManager(cfg *config.Config, clock ports.Clock, metrics ports.MetricsSink, dryRun bool) *Manager {
	timeouts := Timeouts{
		Submit: cfg.BrokerSubmitTimeout,
		Modify: cfg.BrokerModifyTimeout,
		Cancel: cfg.BrokerCancelTimeout,
		Ping:   cfg.BrokerPingTimeout,
	}
	cbCfg := Config{
		FailureThreshold:  cfg.CircuitFailureThreshold,
		FailureRateThresh: cfg.CircuitFailureRateThresh,
		RollingWindow:     cfg.CircuitRollingWindow,
		OpenDuration:      cfg.CircuitOpenDuration,
		HalfOpenTarget:    cfg.CircuitHalfOpenSuccesses,
	}

	clients := make(map[string]*Client, len(cfg.Brokers))
	for name, settings := range cfg.Brokers {
		clients[name] = New(settings, cbCfg, clock, metrics, timeouts, dryRun)
	}
	return &Manager{clients: clients}
}

// NewManagerFromClients builds a Manager directly from pre-built clients,
// used by tests that need deterministic (e.g. dry-run or fault-injecting)
// broker clients without going through config.Load.
func NewManagerFromClients(clients map[string]*Client) *Manager {
	return &Manager{clients: clients}
}

// Get returns the client for a broker, or nil if unconfigured.
func (m *Manager) Get(broker string) (*Client, bool) {
	c, ok := m.clients[broker]
	return c, ok
}

// All returns every managed broker client, for the scheduler's health sweep.
func (m *Manager) All() []*Client {
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}
