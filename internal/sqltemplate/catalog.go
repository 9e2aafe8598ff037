package sqltemplate

import (
	"sort"
	"sync"

	"duckflow/internal/domain"
)

// Catalog is a registry of named templates. Registration happens at start-up;
// Resolve is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{templates: map[string]*Template{}}
}

// Register adds t. Names are unique.
func (c *Catalog) Register(t *Template) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.templates[t.Name]; ok {
		return domain.ErrConflict("template %q already registered", t.Name)
	}
	c.templates[t.Name] = t
	return nil
}

// Resolve returns the named template or an UnknownTemplateError.
func (c *Catalog) Resolve(name string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	if !ok {
		return nil, &domain.UnknownTemplateError{Name: name}
	}
	return t, nil
}

// Names lists registered template names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.templates))
	for n := range c.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
