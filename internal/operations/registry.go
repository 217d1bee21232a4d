package operations

import (
	"fmt"
	"sync"
)

// Registry manages registered pipeline steps
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string // registration order, used as the topological tiebreak
}

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
		order: make([]string, 0),
	}
}

// Register adds a step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}

	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step %s already registered", id)
	}

	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, fmt.Errorf("step %s not found", id)
	}
	return step, nil
}

// Has checks if a step is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.steps[id]
	return exists
}

// List returns all registered steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns all registered step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.steps)
}

// DependencyOrder returns steps topologically sorted by their dependencies.
// Steps with equal standing keep their registration order.
func (r *Registry) DependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := make(map[string][]string)
	inDegree := make(map[string]int)

	for id := range r.steps {
		graph[id] = []string{}
		inDegree[id] = 0
	}

	for id, step := range r.steps {
		for _, dep := range step.Dependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on unregistered step %s", id, dep)
			}
			graph[dep] = append(graph[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, seeding and draining in registration order
	queue := make([]string, 0)
	for _, id := range r.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	ordered := make([]Step, 0, len(r.steps))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, r.steps[current])

		newlyAvailable := make(map[string]bool)
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				newlyAvailable[dependent] = true
			}
		}
		for _, id := range r.order {
			if newlyAvailable[id] {
				queue = append(queue, id)
			}
		}
	}

	if len(ordered) != len(r.steps) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return ordered, nil
}

// ValidateDependencies checks that every declared dependency is registered
// and that the graph is acyclic
func (r *Registry) ValidateDependencies() error {
	r.mu.RLock()
	for id, step := range r.steps {
		for _, dep := range step.Dependencies() {
			if _, exists := r.steps[dep]; !exists {
				r.mu.RUnlock()
				return fmt.Errorf("step %s depends on unregistered step %s", id, dep)
			}
		}
	}
	r.mu.RUnlock()

	_, err := r.DependencyOrder()
	return err
}

// Dependents returns the steps that directly depend on the given step
func (r *Registry) Dependents(stepID string) []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]Step, 0)
	for _, id := range r.order {
		step := r.steps[id]
		for _, dep := range step.Dependencies() {
			if dep == stepID {
				dependents = append(dependents, step)
				break
			}
		}
	}
	return dependents
}
