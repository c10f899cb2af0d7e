package agentloop

import (
	"slices"
	"sync"
)

// TerminateToolName is the conventional name of the terminal tool.
const TerminateToolName = "terminate"

// Catalog holds every tool available to a process. Tools are kept in
// registration order; re-registering a name replaces the entry in place.
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]ToolDescriptor
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]ToolDescriptor)}
}

// Register adds or replaces a tool.
func (c *Catalog) Register(d ToolDescriptor) error {
	if d.Name == "" {
		return &ConfigurationError{Message: "tool name is empty"}
	}
	if d.Func == nil {
		return &ConfigurationError{Message: "tool " + d.Name + " has no function"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[d.Name]; !exists {
		c.order = append(c.order, d.Name)
	}
	c.entries[d.Name] = d.clone()
	return nil
}

// MustRegister is Register for static setup code.
func (c *Catalog) MustRegister(ds ...ToolDescriptor) {
	for _, d := range ds {
		if err := c.Register(d); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return d.clone(), true
}

// Filter narrows List. Tags match when a tool carries any of them. Names is
// an exact-match allowlist. Empty fields do not filter.
type Filter struct {
	Tags  []string
	Names []string
}

func (f Filter) matches(d ToolDescriptor) bool {
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, d.HasTag) {
		return false
	}
	if len(f.Names) > 0 && !slices.Contains(f.Names, d.Name) {
		return false
	}
	return true
}

// List returns the tools that pass f, in registration order.
func (c *Catalog) List(f Filter) []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(c.order))
	for _, name := range c.order {
		d := c.entries[name]
		if f.matches(d) {
			out = append(out, d.clone())
		}
	}
	return out
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Terminal returns the terminal tool: the one named "terminate" if present,
// otherwise the first tool flagged terminal.
func (c *Catalog) Terminal() (ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.entries[TerminateToolName]; ok {
		return d.clone(), true
	}
	for _, name := range c.order {
		if d := c.entries[name]; d.Terminal {
			return d.clone(), true
		}
	}
	return ToolDescriptor{}, false
}
