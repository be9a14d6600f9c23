// internal/template/template.go
package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
)

// TaskTemplate is a task blueprint inside a job card template
type TaskTemplate struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	Description    string        `json:"description,omitempty" yaml:"description"`
	Category       string        `json:"category" yaml:"category"`
	EstimatedHours float64       `json:"estimatedHours" yaml:"estimatedHours"`
	IsCritical     bool          `json:"isCritical" yaml:"isCritical"`
	Parts          []models.Part `json:"parts,omitempty" yaml:"parts"`
	DependsOn      []string      `json:"dependsOn,omitempty" yaml:"dependsOn"`
}

// Template describes a standard service (e.g. a 15,000 km service) as a set of tasks
type Template struct {
	ID                     string          `json:"id" yaml:"id"`
	Name                   string          `json:"name" yaml:"name"`
	Category               string          `json:"category" yaml:"category"`
	DefaultPriority        models.Priority `json:"defaultPriority" yaml:"defaultPriority"`
	VehicleTypes           []string        `json:"vehicleTypes" yaml:"vehicleTypes"`
	EstimatedDurationHours float64         `json:"estimatedDurationHours,omitempty" yaml:"estimatedDurationHours"`
	Tasks                  []TaskTemplate  `json:"tasks" yaml:"tasks"`
}

// TotalHours returns the explicit duration of the template, or the sum of its task estimates
func TotalHours(t Template) float64 {
	if t.EstimatedDurationHours > 0 {
		return t.EstimatedDurationHours
	}
	var sum float64
	for _, task := range t.Tasks {
		sum += task.EstimatedHours
	}
	return sum
}

// Validate returns every problem found in the template; an empty result means it is usable
func Validate(t Template) []string {
	var problems []string

	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, "template id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, fmt.Sprintf("template %s: name is required", t.ID))
	}
	if len(t.VehicleTypes) == 0 {
		problems = append(problems, fmt.Sprintf("template %s: vehicleTypes cannot be empty", t.ID))
	}
	if t.DefaultPriority != "" && !t.DefaultPriority.IsValid() {
		problems = append(problems, fmt.Sprintf("template %s: unknown priority %q", t.ID, t.DefaultPriority))
	}

	ids := make(map[string]bool, len(t.Tasks))
	for _, task := range t.Tasks {
		if ids[task.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id: %s", task.ID))
		}
		ids[task.ID] = true

		if strings.TrimSpace(task.Title) == "" {
			problems = append(problems, fmt.Sprintf("task %s: title is required", task.ID))
		}
		if strings.TrimSpace(task.Category) == "" {
			problems = append(problems, fmt.Sprintf("task %s: category is required", task.ID))
		}
		if task.EstimatedHours <= 0 {
			problems = append(problems, fmt.Sprintf("task %s: estimatedHours must be greater than zero", task.ID))
		}
	}

	for _, task := range t.Tasks {
		for _, dep := range task.DependsOn {
			if !ids[dep] {
				problems = append(problems, fmt.Sprintf("task %s depends on missing task %s", task.ID, dep))
			}
		}
	}

	if cycle := NewGraph(t.Tasks).FindCycle(); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	return problems
}

// Instantiate creates the tasks of a new job card from the template.
// Task ids are freshly generated and dependencies are rewritten to the new ids.
func Instantiate(t Template, jobCardID string, assignedTo string, actor models.Actor, now time.Time) ([]models.Task, []models.HistoryEntry, error) {
	if problems := Validate(t); len(problems) > 0 {
		return nil, nil, fmt.Errorf("invalid template %s: %s", t.ID, strings.Join(problems, "; "))
	}

	tasks := make([]models.Task, 0, len(t.Tasks))
	entries := make([]models.HistoryEntry, 0, len(t.Tasks))
	newIDs := make(map[string]string, len(t.Tasks))

	for _, tt := range t.Tasks {
		task, entry, err := lifecycle.CreateTask(jobCardID, models.NewTask{
			Title:          tt.Title,
			Description:    tt.Description,
			Category:       tt.Category,
			EstimatedHours: tt.EstimatedHours,
			IsCritical:     tt.IsCritical,
			AssignedTo:     assignedTo,
			Parts:          tt.Parts,
		}, actor, now)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create task %s from template %s: %w", tt.ID, t.ID, err)
		}
		newIDs[tt.ID] = task.ID
		tasks = append(tasks, task)
		entries = append(entries, entry)
	}

	for i, tt := range t.Tasks {
		for _, dep := range tt.DependsOn {
			tasks[i].DependsOn = append(tasks[i].DependsOn, newIDs[dep])
		}
	}

	return tasks, entries, nil
}
