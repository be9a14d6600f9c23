// internal/template/registry.go
package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrTemplateNotFound = errors.New("template not found")

// Registry manages the job card templates available to the service
type Registry struct {
	templates map[string]Template
	mu        sync.RWMutex
}

// NewRegistry creates a new template registry
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]Template),
	}
}

// Register validates a template and adds it to the registry
func (r *Registry) Register(t Template) error {
	if problems := Validate(t); len(problems) > 0 {
		return fmt.Errorf("invalid template %s: %s", t.ID, strings.Join(problems, "; "))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("template %s already registered", t.ID)
	}

	r.templates[t.ID] = t
	return nil
}

// Get retrieves a template from the registry
func (r *Registry) Get(id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.templates[id]
	if !exists {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	return t, nil
}

// List returns all registered templates ordered by id
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
