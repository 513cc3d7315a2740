package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
)

var (
	// ErrUnknownDependency signals a dependency on an unregistered processor.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrCircularDependency signals a cycle in the processor graph.
	ErrCircularDependency = errors.New("circular dependency")
)

// DependencyError is a plan-resolution failure.
type DependencyError struct {
	Processor  string
	Dependency string
	Stuck      []string
	Err        error
}

func (e *DependencyError) Error() string {
	if len(e.Stuck) > 0 {
		return fmt.Sprintf("%s among processors: %s", e.Err, strings.Join(e.Stuck, ", "))
	}
	return fmt.Sprintf("processor %q: %s %q", e.Processor, e.Err, e.Dependency)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// HashFunc digests every input the processor output depends on.
type HashFunc func(e *entity.Entity, jc *JobContext) (string, error)

// KeyFunc builds the idempotency key for an entity.
type KeyFunc func(entityID string) string

// ExecuteFunc produces the processor output for one entity.
type ExecuteFunc func(ctx context.Context, e *entity.Entity, jc *JobContext) (any, error)

// Definition is a named processor with declared dependencies.
type Definition struct {
	Name      string
	DependsOn []string
	Hash      HashFunc
	Key       KeyFunc // nil means "<name>:<entityID>"
	Execute   ExecuteFunc
}

// IdempotencyKey returns the key for entityID.
func (d Definition) IdempotencyKey(entityID string) string {
	if d.Key != nil {
		return d.Key(entityID)
	}
	return d.Name + ":" + entityID
}

// Registry holds processor definitions by name.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a processor by name.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("processor name is required")
	}
	if def.Execute == nil || def.Hash == nil {
		return fmt.Errorf("processor %q: hash and execute are required", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names returns registered processor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ResolveExecutionOrder groups processors into turns. Each turn holds every
// not-yet-scheduled processor whose dependencies are all scheduled in earlier
// turns. Processors inside a turn are sorted by name.
func (r *Registry) ResolveExecutionOrder() ([][]Definition, error) {
	r.mu.RLock()
	defs := make(map[string]Definition, len(r.defs))
	for k, v := range r.defs {
		defs[k] = v
	}
	r.mu.RUnlock()

	for _, name := range sortedKeys(defs) {
		for _, dep := range defs[name].DependsOn {
			if _, ok := defs[dep]; !ok {
				return nil, &DependencyError{Processor: name, Dependency: dep, Err: ErrUnknownDependency}
			}
		}
	}

	completed := make(map[string]bool, len(defs))
	var turns [][]Definition

	for len(completed) < len(defs) {
		var turn []Definition
		for _, name := range sortedKeys(defs) {
			if completed[name] {
				continue
			}
			ready := true
			for _, dep := range defs[name].DependsOn {
				if !completed[dep] {
					ready = false
					break
				}
			}
			if ready {
				turn = append(turn, defs[name])
			}
		}

		if len(turn) == 0 {
			var stuck []string
			for _, name := range sortedKeys(defs) {
				if !completed[name] {
					stuck = append(stuck, name)
				}
			}
			return nil, &DependencyError{Stuck: stuck, Err: ErrCircularDependency}
		}

		// mark after collecting so that a turn never depends on itself
		for _, d := range turn {
			completed[d.Name] = true
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

func sortedKeys(m map[string]Definition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
