package backend

import (
	"fmt"

	"github.com/taskrelay/taskrelay/internal/log"
)

// Registry holds the available backends by name.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds the backend set. The api backend is registered only
// when an API key is configured.
func NewRegistry(anthropicAPIKey string) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	r.Register(NewClaude())
	r.Register(NewPlanImplement())

	if anthropicAPIKey != "" {
		api, err := NewAnthropic(anthropicAPIKey)
		if err != nil {
			log.GetLogger().Warnf("api backend disabled: %v", err)
		} else {
			r.Register(api)
		}
	}
	return r
}

// Register adds a backend, replacing any existing one with the same name.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// Get returns the named backend.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return b, nil
}
