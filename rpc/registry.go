package rpc

import (
	"context"
	"encoding/json"
	"sync"
)

// rawHandler is the type-erased shape every typed handler compiles down to:
// a function of (context, request id, raw JSON payload) that either
// produces a reply (respond=true, isError selects response vs error) or
// suppresses one entirely (respond=false) — e.g. because the payload failed
// to decode into the registered Req type.
type rawHandler func(ctx context.Context, id uint32, payload json.RawMessage) (result json.RawMessage, isError bool, respond bool)

// registry stores request handlers keyed by method name. A second
// registration under the same name replaces the first.
type registry struct {
	mu       sync.Mutex
	handlers map[string]rawHandler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]rawHandler)}
}

func (r *registry) set(name string, h rawHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *registry) get(name string) (rawHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[name]
	return h, ok
}

// rawNotificationHandler is the type-erased shape of a notification
// observer: it is handed the raw payload and decides for itself whether it
// decodes cleanly.
type rawNotificationHandler func(payload json.RawMessage)

type notificationRegistry struct {
	mu       sync.Mutex
	handlers map[string]rawNotificationHandler
}

func newNotificationRegistry() *notificationRegistry {
	return &notificationRegistry{handlers: make(map[string]rawNotificationHandler)}
}

func (r *notificationRegistry) set(name string, h rawNotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *notificationRegistry) get(name string) (rawNotificationHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[name]
	return h, ok
}
