// Package graph provides the dependency graph over the tasks of one workflow.
//
// An edge task -> dep means task cannot proceed until dep is completed. The graph
// is a read-only view built per command; callers validate proposed edges with
// CheckEdges before committing them.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/advisoros/taskcore/pkg/models"
)

var (
	// ErrUnknownTask indicates an edge references a task outside the workflow.
	ErrUnknownTask = errors.New("dependency references unknown task")

	// ErrSelfDependency indicates a task was made to depend on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrCycle indicates the proposed edges would close a dependency cycle.
	ErrCycle = errors.New("dependency cycle")
)

// Graph is an adjacency view of the dependency relation of one workflow.
type Graph struct {
	tasks      map[string]*models.Task
	deps       map[string][]string
	dependents map[string][]string
}

// New builds a graph from the tasks of a single workflow.
func New(tasks []*models.Task) *Graph {
	g := &Graph{
		tasks:      make(map[string]*models.Task, len(tasks)),
		deps:       make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
	}

	for _, task := range tasks {
		g.tasks[task.ID] = task
	}

	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			g.deps[task.ID] = append(g.deps[task.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], task.ID)
		}
	}

	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	return g
}

// Has reports whether id is a task of this workflow.
func (g *Graph) Has(id string) bool {
	_, ok := g.tasks[id]

	return ok
}

// Dependents returns the IDs of tasks that directly depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.dependents[id])
}

// reaches reports whether "to" is reachable from "from" by following dependency edges,
// including the extra edges.
func (g *Graph) reaches(from, to string, extra map[string][]string) bool {
	visited := make(map[string]bool)
	stack := []string{from}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == to {
			return true
		}

		if visited[current] {
			continue
		}

		visited[current] = true

		stack = append(stack, g.deps[current]...)
		stack = append(stack, extra[current]...)
	}

	return false
}

// CheckEdges validates adding edges taskID -> dep for every dep in deps.
//
// taskID may be a task that does not exist yet (creation). A cycle exists iff taskID is
// reachable from one of the proposed dependencies, including through the other proposed
// edges.
func (g *Graph) CheckEdges(taskID string, deps []string) error {
	proposed := map[string][]string{taskID: deps}

	for _, dep := range deps {
		if dep == taskID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, taskID)
		}

		if !g.Has(dep) {
			return fmt.Errorf("%w: %s", ErrUnknownTask, dep)
		}
	}

	for _, dep := range deps {
		if g.reaches(dep, taskID, proposed) {
			return fmt.Errorf("%w: %s -> %s leads back to %s", ErrCycle, taskID, dep, taskID)
		}
	}

	return nil
}

// Unsatisfied returns the dependencies of id that are not completed, in edge order.
func (g *Graph) Unsatisfied(id string) []string {
	var pending []string

	for _, dep := range g.deps[id] {
		task := g.tasks[dep]
		if task == nil || task.Status != models.TaskStatusCompleted {
			pending = append(pending, dep)
		}
	}

	return pending
}

// TopologicalOrder returns task IDs so that every dependency precedes its dependents.
// Ties are broken by position, then ID. It fails with ErrCycle on a cyclic graph.
func (g *Graph) TopologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		indegree[id] = 0
	}

	for id, deps := range g.deps {
		for _, dep := range deps {
			if g.Has(dep) {
				indegree[id]++
			}
		}
	}

	var ready []string

	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.tasks))

	for len(ready) > 0 {
		g.sortByPosition(ready)

		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dependent := range g.dependents[current] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.tasks) {
		return nil, ErrCycle
	}

	return order, nil
}

func (g *Graph) sortByPosition(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.tasks[ids[i]], g.tasks[ids[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}

		return a.ID < b.ID
	})
}
