package dispatch

import (
	"log/slog"
	"strings"
	"sync"
)

// Registry maps command names and aliases to handlers. Registration happens
// once at startup; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	aliases  map[string]string
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		aliases:  make(map[string]string),
		log:      log.With("component", "dispatch.registry"),
	}
}

// Register inserts a handler under its descriptor name and aliases.
// Re-registering a name or alias overwrites the previous entry; that is
// deliberate and only logged.
func (r *Registry) Register(handler Handler) {
	desc := handler.Descriptor()
	name := strings.ToLower(strings.TrimSpace(desc.Name))
	if name == "" {
		r.log.Warn("Ignoring handler with empty command name")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		r.log.Warn("Overwriting existing command handler", "command", name)
	}
	r.handlers[name] = handler

	for _, alias := range desc.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" {
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.log.Warn("Overwriting existing command alias", "alias", aliasLower, "command", name)
		}
		r.aliases[aliasLower] = name
	}

	r.log.Info("Registered command handler", "command", name, "aliases", strings.Join(desc.Aliases, ","))
}

// Resolve returns the handler for a command token or alias,
// case-insensitively. Alias resolution is always a single hop.
func (r *Registry) Resolve(token string) (Handler, bool) {
	key := strings.ToLower(strings.TrimSpace(token))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if handler, ok := r.handlers[key]; ok {
		return handler, true
	}
	if name, ok := r.aliases[key]; ok {
		handler, ok := r.handlers[name]
		return handler, ok
	}
	return nil, false
}

// Unregister removes a primary command and every alias pointing at it.
func (r *Registry) Unregister(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[key]; !ok {
		return false
	}
	delete(r.handlers, key)

	for alias, target := range r.aliases {
		if target == key {
			delete(r.aliases, alias)
		}
	}
	return true
}

// List returns all primary command names in registration-independent order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
