// Package brokerauth provides the reference broker-connection auth client
// this engine ships with. Linking a user's brokerage account (OAuth tokens,
// session keys) happens in an external service; the core only asks whether
// a user currently holds a usable connection to a given broker, so this is
// a small grant table, not a credential store.
package brokerauth

import (
	"context"
	"sync"

	"github.com/yourorg/tradingcore/internal/ports"
)

// Static answers connection lookups from an in-memory grant table. With no
// grants recorded for a user it falls back to allowAll, which is the right
// default for dry-run deployments where no broker linkage exists to check.
type Static struct {
	mu       sync.RWMutex
	grants   map[uint64]map[string]bool // userID -> broker -> usable
	allowAll bool
}

// NewStatic builds a grant table. allowAll controls the answer for users
// with no recorded grants.
func NewStatic(allowAll bool) *Static {
	return &Static{
		grants:   make(map[uint64]map[string]bool),
		allowAll: allowAll,
	}
}

// Grant records that userID holds a usable connection to broker.
func (s *Static) Grant(userID uint64, broker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[userID] == nil {
		s.grants[userID] = make(map[string]bool)
	}
	s.grants[userID][broker] = true
}

// Revoke marks userID's connection to broker unusable.
func (s *Static) Revoke(userID uint64, broker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[userID] == nil {
		s.grants[userID] = make(map[string]bool)
	}
	s.grants[userID][broker] = false
}

// GetBrokerConnection implements ports.BrokerAuthClient.
func (s *Static) GetBrokerConnection(ctx context.Context, userID uint64, broker string) (ports.BrokerConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.grants[userID]; ok {
		if usable, recorded := user[broker]; recorded {
			return ports.BrokerConnection{Usable: usable}, nil
		}
	}
	return ports.BrokerConnection{Usable: s.allowAll}, nil
}

var _ ports.BrokerAuthClient = (*Static)(nil)
