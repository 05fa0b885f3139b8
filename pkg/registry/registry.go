// Package registry maps tool names to their handlers, versions, default
// cache policies, and parameter schemas.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// Handler executes a tool call with already-validated parameters. Handlers
// observe ctx for cooperative cancellation; a handler that ignores ctx is
// abandoned on timeout, not killed.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Definition describes one registered tool.
type Definition struct {
	Name          string
	Version       string
	Description   string
	DefaultPolicy contract.CachePolicy
	DefaultLevel  contract.OutputLevel
	Timeout       time.Duration
	ParamsSchema  string
	Handler       Handler

	compiled *jsonschema.Schema
}

// Registry is the process-wide tool table, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

func New() *Registry {
	return &Registry{tools: make(map[string]*Definition)}
}

// Register adds a tool definition, compiling its parameter schema up front
// so malformed schemas fail at startup rather than per call.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	if def.Version == "" {
		def.Version = "1.0"
	}
	if def.DefaultPolicy == "" {
		def.DefaultPolicy = contract.PolicyNoCache
	}
	if def.DefaultLevel == "" {
		def.DefaultLevel = contract.OutputStandard
	}
	if def.ParamsSchema != "" {
		compiled, err := jsonschema.CompileString("tool_"+def.Name, def.ParamsSchema)
		if err != nil {
			return fmt.Errorf("compile schema for tool %s: %w", def.Name, err)
		}
		def.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	if !ok {
		return nil, contract.NewError(contract.ErrValidation, "unknown tool: %s", name)
	}
	return def, nil
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateParams checks parameters against the tool's compiled schema.
// Tools without a schema accept any parameters.
func (d *Definition) ValidateParams(params map[string]any) error {
	if d.compiled == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	// round-trip so the validator sees JSON-typed values regardless of how
	// the caller built the map
	raw, err := json.Marshal(params)
	if err != nil {
		return contract.NewError(contract.ErrValidation, "parameters not serializable: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return contract.NewError(contract.ErrValidation, "parameters not serializable: %v", err)
	}
	if err := d.compiled.Validate(decoded); err != nil {
		return contract.NewError(contract.ErrValidation, "invalid parameters for %s: %v", d.Name, err)
	}
	return nil
}
