package tools

import (
	"fmt"
	"sort"
	"sync"

	"memchat/internal/config"
	"memchat/internal/logging"
	"memchat/internal/policy"
	"memchat/internal/types"
)

// Registry holds all registered tools. Registration happens at startup from
// the handler packages; lookups happen per invocation. Safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are a programming error surfaced
// immediately.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: tool must have a name", ErrBadArgument)
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %q has no execute function", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t.Name)
	}
	r.tools[t.Name] = t
	logging.ToolsDebug("registered tool %s (%s)", t.Name, t.Category)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// View is the per-turn read-only projection of the registry joined with a
// configuration snapshot: which tools are enabled, their policy descriptors,
// and the definitions advertised to the model. Built once per turn so an
// operator toggling a tool mid-turn never races an in-flight authorization.
type View struct {
	tools       map[string]*Tool
	descriptors map[string]policy.Descriptor
}

// Snapshot joins the registry with the given configuration snapshot.
// Tools without a config entry are disabled: capabilities are granted
// explicitly, never assumed.
func (r *Registry) Snapshot(cfg *config.Config) *View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := &View{
		tools:       make(map[string]*Tool, len(r.tools)),
		descriptors: make(map[string]policy.Descriptor, len(r.tools)),
	}
	for name, t := range r.tools {
		tc := cfg.Tools[name]
		v.tools[name] = t
		v.descriptors[name] = policy.Descriptor{
			Name:             name,
			SideEffecting:    t.Category == CategorySideEffecting,
			Enabled:          tc.Enabled,
			RequiresApproval: tc.RequiresApproval,
			Target:           t.Target,
			TargetParameter:  t.TargetParameter,
			Whitelist:        tc.Whitelist,
			RootDirectory:    tc.RootDirectory,
			TimeoutSeconds:   tc.TimeoutSeconds,
		}
	}
	return v
}

// Tool returns the named tool from the view.
func (v *View) Tool(name string) (*Tool, error) {
	t, ok := v.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Descriptor returns the policy descriptor for the named tool. Unknown tools
// yield a disabled descriptor, which the policy engine denies as invisible.
func (v *View) Descriptor(name string) policy.Descriptor {
	if d, ok := v.descriptors[name]; ok {
		return d
	}
	return policy.Descriptor{Name: name, Enabled: false}
}

// Definitions returns the JSON-Schema declarations for all enabled tools,
// sorted by name. Disabled tools are invisible to the model, not merely
// denied.
func (v *View) Definitions() []types.ToolDefinition {
	names := make([]string, 0, len(v.tools))
	for name := range v.tools {
		if v.descriptors[name].Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	defs := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, v.tools[name].Definition())
	}
	return defs
}

// AnyEnabled reports whether the view exposes at least one tool.
func (v *View) AnyEnabled() bool {
	for _, d := range v.descriptors {
		if d.Enabled {
			return true
		}
	}
	return false
}
