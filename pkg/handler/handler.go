package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/radgate/radgate/pkg/codec"
	"github.com/radgate/radgate/pkg/types"
)

// Func is the user callback invoked once per accepted request.
//
// Returning a non-nil Reply sends it to the NAS; returning (nil, nil)
// means no reply is sent and the request is silently discarded. An error
// counts as a handler failure.
type Func func(ctx context.Context, req *codec.Request, nas *types.NasProperties, data any) (*codec.Reply, error)

// Handler is a registered request callback plus its static configuration.
type Handler struct {
	// Module names the handler; NAS registrations refer to it and worker
	// nodes advertise it on the node bus.
	Module string

	// Data is passed opaquely to every callback invocation.
	Data any

	// MsgAuth forces Message-Authenticator on every reply this handler
	// produces.
	MsgAuth bool

	Serve Func
}

// Registry resolves module names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

// Register adds a handler. Registering a module twice replaces the
// previous handler.
func (r *Registry) Register(h *Handler) error {
	if h == nil || h.Module == "" || h.Serve == nil {
		return fmt.Errorf("handler requires a module name and a callback")
	}
	r.mu.Lock()
	r.handlers[h.Module] = h
	r.mu.Unlock()
	return nil
}

// Deregister removes a module.
func (r *Registry) Deregister(module string) {
	r.mu.Lock()
	delete(r.handlers, module)
	r.mu.Unlock()
}

// Get returns the handler for a module.
func (r *Registry) Get(module string) (*Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[module]
	r.mu.RUnlock()
	return h, ok
}

// Modules lists the registered module names.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}
