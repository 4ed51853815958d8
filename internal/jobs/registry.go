package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/docuchat-backend/internal/types"
)

type Handler interface {
	Name() string
	Run(ctx context.Context, job *types.IngestJob) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	name := h.Name()
	if name == "" {
		return fmt.Errorf("handler Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered for job_name=%s", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Get(jobName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobName]
	return h, ok
}
