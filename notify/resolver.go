package notify

import (
	"context"
	"sync"

	"github.com/keyfate/keyfate/interfaces"
)

// StaticResolver is an in-memory contact directory. The account system that
// owns user profiles lives outside this service, so deployments feed the
// resolver at startup or through their own sync job.
type StaticResolver struct {
	mu       sync.RWMutex
	contacts map[string][]interfaces.ContactPoint
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{contacts: make(map[string][]interfaces.ContactPoint)}
}

// Set replaces the contact points for a user. Order is preference order.
func (r *StaticResolver) Set(userID string, contacts ...interfaces.ContactPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[userID] = append([]interfaces.ContactPoint(nil), contacts...)
}

// Resolve returns the user's contact points. An unknown user resolves to an
// empty list, not an error.
func (r *StaticResolver) Resolve(_ context.Context, userID string) ([]interfaces.ContactPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]interfaces.ContactPoint(nil), r.contacts[userID]...), nil
}
