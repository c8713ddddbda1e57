package modules

import (
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	key := strings.TrimSpace(h.Key())
	if key == "" {
		return errors.New("handler Key() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return errors.Newf("handler already registered for module_key=%s", key)
	}
	r.handlers[key] = h
	return nil
}

func (r *Registry) Get(key string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// Handlers returns every registered handler ordered by key.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
