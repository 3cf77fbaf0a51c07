// Package progress derives workflow completion and rollup statistics from task state.
//
// Everything here is a pure function of the tasks passed in; the task graph store
// calls Compute inside the same commit as the task mutation that changed it.
package progress

import (
	"math"
	"time"

	"github.com/advisoros/taskcore/pkg/models"
)

// Compute returns round(100 * completed / total), weighting each task by its
// estimated hours when every task carries a positive estimate. An empty workflow is 0.
func Compute(tasks []*models.Task) int {
	if len(tasks) == 0 {
		return 0
	}

	if percent, ok := weighted(tasks); ok {
		return percent
	}

	completed := 0

	for _, task := range tasks {
		if task.Status == models.TaskStatusCompleted {
			completed++
		}
	}

	return percentOf(float64(completed), float64(len(tasks)))
}

func weighted(tasks []*models.Task) (int, bool) {
	var total, done float64

	for _, task := range tasks {
		if task.EstimatedHours == nil || *task.EstimatedHours <= 0 {
			return 0, false
		}

		total += *task.EstimatedHours
		if task.Status == models.TaskStatusCompleted {
			done += *task.EstimatedHours
		}
	}

	return percentOf(done, total), true
}

func percentOf(part, whole float64) int {
	if whole <= 0 {
		return 0
	}

	return int(math.Round(100 * part / whole))
}

// Rollup summarizes a workflow's tasks.
type Rollup struct {
	WorkflowID string                    `json:"workflow_id"`
	Progress   int                       `json:"progress"`
	Weighted   bool                      `json:"weighted"`
	Total      int                       `json:"total"`
	ByStatus   map[models.TaskStatus]int `json:"by_status"`
	ByPriority map[models.Priority]int   `json:"by_priority"`
	Blocked    int                       `json:"blocked"`
	Overdue    int                       `json:"overdue"`
	Unassigned int                       `json:"unassigned"`
	HoursTotal float64                   `json:"hours_total"`
	HoursDone  float64                   `json:"hours_done"`
	ComputedAt time.Time                 `json:"computed_at"`
}

// Summarize builds the rollup of a workflow's tasks as of now.
func Summarize(workflowID string, tasks []*models.Task, now time.Time) *Rollup {
	rollup := &Rollup{
		WorkflowID: workflowID,
		Progress:   Compute(tasks),
		Total:      len(tasks),
		ByStatus:   make(map[models.TaskStatus]int),
		ByPriority: make(map[models.Priority]int),
		ComputedAt: now,
	}

	_, rollup.Weighted = weighted(tasks)
	if len(tasks) == 0 {
		rollup.Weighted = false
	}

	for _, task := range tasks {
		rollup.ByStatus[task.Status]++
		rollup.ByPriority[task.Priority]++

		if task.Status == models.TaskStatusBlocked {
			rollup.Blocked++
		}

		if task.IsOverdue(now) {
			rollup.Overdue++
		}

		if task.Assignee == "" {
			rollup.Unassigned++
		}

		if task.EstimatedHours != nil {
			rollup.HoursTotal += *task.EstimatedHours
			if task.Status == models.TaskStatusCompleted {
				rollup.HoursDone += *task.EstimatedHours
			}
		}
	}

	return rollup
}
