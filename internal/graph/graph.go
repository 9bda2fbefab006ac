// Package graph provides the dependency graph behind plan validation and
// scheduling. Tasks are nodes keyed by ID; edges are stored as ID
// references in declared order, never as pointers.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/delegate/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDuplicateTask indicates two tasks share an ID.
var ErrDuplicateTask = errors.New("duplicate task id")

// UnknownDependencyError reports a dependency on a task that does not exist.
type UnknownDependencyError struct {
	TaskID string
	DepID  string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DepID)
}

// CycleError reports the offending cycle. Path starts and ends with the
// same ID and follows "depends on" edges.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DuplicateTaskError reports a repeated task ID.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateTask, e.TaskID)
}

func (e *DuplicateTaskError) Unwrap() error { return ErrDuplicateTask }

// DependencyGraph is a directed acyclic graph of task dependencies.
type DependencyGraph struct {
	mu sync.RWMutex
	// order holds task IDs in declared order, first occurrence only.
	order []string
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// dependents maps task ID to IDs of tasks that depend on it.
	dependents map[string][]string
	// duplicates records IDs seen more than once, in declared order.
	duplicates []string
	debugLog   func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
		debugLog:   func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from tasks in declared order. Checks run in a
// fixed order: unknown dependencies, then cycles, then duplicate IDs. Edges
// of a duplicated ID are merged so the earlier checks still see them.
func (g *DependencyGraph) Build(tasks []models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if seen[task.ID] {
			g.duplicates = append(g.duplicates, task.ID)
			continue
		}
		seen[task.ID] = true
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if !seen[depID] {
				return &UnknownDependencyError{TaskID: task.ID, DepID: depID}
			}
			if contains(g.edges[task.ID], depID) {
				continue
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
	}

	g.debugLog("[graph.Build] edges: %v", g.edges)

	if path := g.findCycleLocked(); path != nil {
		return &CycleError{Path: path}
	}
	if len(g.duplicates) > 0 {
		return &DuplicateTaskError{TaskID: g.duplicates[0]}
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.order))
	return nil
}

// findCycleLocked is a three-colour DFS that keeps the gray stack so the
// back edge can be turned into a path.
func (g *DependencyGraph) findCycleLocked() []string {
	// 0 = white, 1 = gray, 2 = black.
	colors := make(map[string]int, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				start := indexOf(stack, depID)
				path := append([]string{}, stack[start:]...)
				return append(path, depID)
			case 0:
				if path := visit(depID); path != nil {
					return path
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if path := visit(id); path != nil {
				return path
			}
		}
	}
	return nil
}

// Layers groups task IDs into waves: every task's dependencies sit in
// earlier waves. Within a wave tasks keep declared order.
func (g *DependencyGraph) Layers() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if path := g.findCycleLocked(); path != nil {
		return nil, &CycleError{Path: path}
	}

	placed := make(map[string]bool, len(g.order))
	var layers [][]string
	for remaining := len(g.order); remaining > 0; {
		var layer []string
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			ready := true
			for _, depID := range g.edges[id] {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		// Placed only after the sweep so a task never joins its dependency's wave.
		for _, id := range layer {
			placed[id] = true
		}
		remaining -= len(layer)
		layers = append(layers, layer)
	}
	return layers, nil
}

// Dependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// TransitiveDependents returns every task with a direct or indirect
// dependency on taskID, in declared order.
func (g *DependencyGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reached := make(map[string]bool)
	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] {
			continue
		}
		reached[id] = true
		queue = append(queue, g.dependents[id]...)
	}

	var result []string
	for _, id := range g.order {
		if reached[id] {
			result = append(result, id)
		}
	}
	return result
}

// Satisfied reports whether every dependency of taskID is in done.
func (g *DependencyGraph) Satisfied(taskID string, done map[string]bool) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, depID := range g.edges[taskID] {
		if !done[depID] {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	return indexOf(ids, id) >= 0
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
