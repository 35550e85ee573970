package tool

import (
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// Registry maps unique tool names to tools. It is filled once during setup
// and sealed before queries are served; afterwards it is read-only.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]gollem.Tool
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]gollem.Tool),
	}
}

// Register adds a tool. Names must be unique within the registry.
func (r *Registry) Register(t gollem.Tool) error {
	name := t.Spec().Name
	if strings.TrimSpace(name) == "" {
		return goerr.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return goerr.Wrap(model.ErrRegistrySealed, "cannot register tool", goerr.V(model.ToolNameKey, name))
	}
	if _, exists := r.tools[name]; exists {
		return goerr.Wrap(model.ErrDuplicateTool, "tool already registered", goerr.V(model.ToolNameKey, name))
	}
	r.tools[name] = t
	return nil
}

// Seal forbids further registration
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Resolve returns the tool registered under name
func (r *Registry) Resolve(name string) (gollem.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownTool, "tool is not registered", goerr.V(model.ToolNameKey, name))
	}
	return t, nil
}

// List returns descriptors of all tools ordered by name
func (r *Registry) List() []model.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ToolDescriptor, 0, len(r.tools))
	for name, t := range r.tools {
		out = append(out, model.ToolDescriptor{Name: name, Description: t.Spec().Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names in order
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, d := range list {
		names[i] = d.Name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
