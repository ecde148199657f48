package telephony

import "sync"

// Registry holds the providers available to the orchestrator. It is
// populated at startup and read-mostly afterwards. Names preserves
// registration order so tie-breaking during selection is deterministic.
type Registry struct {
	mu        sync.RWMutex
	names     []string
	providers map[string]VoiceProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]VoiceProvider{}}
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p VoiceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.providers[name] = p
}

func (r *Registry) Get(name string) (VoiceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
