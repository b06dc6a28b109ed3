// Package federation connects the identity service to upstream identity
// providers. A Provider turns an upstream authorization code into a Subject
// that the user service can map onto a local account.
package federation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// ErrProviderNotFound indicates no provider is registered under the name.
var ErrProviderNotFound = errors.New("federation provider not found")

// Subject is the normalized identity returned by an upstream provider.
type Subject struct {
	// Provider-scoped stable id, e.g. the GitHub numeric user id.
	ProviderID string

	Email         string
	EmailVerified bool
	Username      string
	Name          string
	Picture       string
	Locale        string
}

// Provider is one upstream identity source.
type Provider interface {
	// Name is the stable registry key, e.g. "github".
	Name() string

	// AuthorizeURL builds the upstream authorization URL the user agent is
	// redirected to.
	AuthorizeURL(state, nonce, redirectURI string) string

	// Exchange trades the upstream code for the authenticated subject.
	Exchange(ctx context.Context, code, redirectURI string) (*Subject, error)
}

// Registry holds the configured providers.
type Registry struct {
	providers map[string]Provider
	lock      sync.RWMutex
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrap(ErrProviderNotFound, "[Registry.Get] "+name)
	}
	return p, nil
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// newBreaker builds the circuit breaker wrapped around upstream exchanges.
// A flapping upstream trips the breaker so logins fail fast instead of
// stacking up timed-out requests.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
