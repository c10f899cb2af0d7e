package agentloop

// RegistryOptions selects which catalog tools a run may use.
type RegistryOptions struct {
	Tags  []string
	Names []string
}

// Registry is the set of actions available to one run.
type Registry struct {
	actions  []*Action
	byName   map[string]*Action
	terminal *ToolDescriptor
}

// BuildRegistry materializes the catalog tools passing opts. The catalog's
// terminal tool is remembered even when the filters exclude it, so that
// RegisterTerminate can add it back.
func BuildRegistry(c *Catalog, opts RegistryOptions) *Registry {
	r := &Registry{byName: make(map[string]*Action)}
	for _, d := range c.List(Filter(opts)) {
		r.Register(newAction(d))
	}
	if d, ok := c.Terminal(); ok {
		r.terminal = &d
	}
	return r
}

// Register adds or replaces an action by name.
func (r *Registry) Register(a *Action) {
	if existing, ok := r.byName[a.Name]; ok {
		for i, cur := range r.actions {
			if cur == existing {
				r.actions[i] = a
				break
			}
		}
	} else {
		r.actions = append(r.actions, a)
	}
	r.byName[a.Name] = a
}

// RegisterTerminate makes sure the terminal action is available.
func (r *Registry) RegisterTerminate() error {
	if r.terminal == nil {
		return &ConfigurationError{Message: "no terminate tool registered in the catalog"}
	}
	r.Register(newAction(*r.terminal))
	return nil
}

// Get returns the action registered under exactly name.
func (r *Registry) Get(name string) (*Action, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// List returns actions in registration order.
func (r *Registry) List() []*Action {
	out := make([]*Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Len returns the number of actions.
func (r *Registry) Len() int { return len(r.actions) }

// TerminalName returns the name a model uses to end the run.
func (r *Registry) TerminalName() string {
	if r.terminal != nil {
		return r.terminal.Name
	}
	return TerminateToolName
}
