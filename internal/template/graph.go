// internal/template/graph.go
package template

import (
	"github.com/fawad-mazhar/jobcards/internal/models"
)

// Graph represents the dependency graph between the tasks of a template or job card
type Graph struct {
	Nodes        []string            // Task IDs in declaration order
	Dependencies map[string][]string // Task ID -> Dependencies IDs
	Completed    map[string]bool     // Track finished tasks
}

// NewGraph creates a dependency graph from template tasks
func NewGraph(tasks []TaskTemplate) *Graph {
	g := &Graph{
		Dependencies: make(map[string][]string, len(tasks)),
		Completed:    make(map[string]bool),
	}
	for _, task := range tasks {
		g.Nodes = append(g.Nodes, task.ID)
		g.Dependencies[task.ID] = task.DependsOn
	}
	return g
}

// NewTaskGraph creates a dependency graph from job card tasks, marking finished tasks completed
func NewTaskGraph(tasks []models.Task) *Graph {
	g := &Graph{
		Dependencies: make(map[string][]string, len(tasks)),
		Completed:    make(map[string]bool),
	}
	for _, task := range tasks {
		g.Nodes = append(g.Nodes, task.ID)
		g.Dependencies[task.ID] = task.DependsOn
		if task.Status.IsFinished() {
			g.Completed[task.ID] = true
		}
	}
	return g
}

// IsReady checks if all dependencies of a task are finished.
// Dependencies that are not part of the graph (e.g. deleted tasks) do not block.
func (g *Graph) IsReady(taskID string) bool {
	for _, depID := range g.Dependencies[taskID] {
		if _, known := g.Dependencies[depID]; !known {
			continue
		}
		if !g.Completed[depID] {
			return false
		}
	}
	return true
}

// GetReadyTasks returns all unfinished tasks whose dependencies are finished
func (g *Graph) GetReadyTasks() []string {
	readyTasks := make([]string, 0)
	for _, taskID := range g.Nodes {
		if !g.Completed[taskID] && g.IsReady(taskID) {
			readyTasks = append(readyTasks, taskID)
		}
	}
	return readyTasks
}

// GetBlockedTasks returns all unfinished tasks still waiting on a dependency
func (g *Graph) GetBlockedTasks() []string {
	blocked := make([]string, 0)
	for _, taskID := range g.Nodes {
		if !g.Completed[taskID] && !g.IsReady(taskID) {
			blocked = append(blocked, taskID)
		}
	}
	return blocked
}

// FindCycle returns one dependency cycle as a path that starts and ends on the same task,
// or nil when the graph is acyclic
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range g.Dependencies[id] {
			if _, known := g.Dependencies[dep]; !known {
				continue
			}
			switch state[dep] {
			case visiting:
				for i, v := range stack {
					if v == dep {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.Nodes {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
