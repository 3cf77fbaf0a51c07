package graph

import (
	"testing"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id string, position int, status models.TaskStatus, deps ...string) *models.Task {
	return &models.Task{ID: id, Position: position, Status: status, Dependencies: deps}
}

func TestCheckEdges_UnknownAndSelf(t *testing.T) {
	g := New([]*models.Task{task("a", 0, models.TaskStatusPending)})

	err := g.CheckEdges("b", []string{"missing"})
	require.ErrorIs(t, err, ErrUnknownTask)

	err = g.CheckEdges("a", []string{"a"})
	require.ErrorIs(t, err, ErrSelfDependency)

	require.NoError(t, g.CheckEdges("b", []string{"a"}))
}

func TestCheckEdges_TwoCycle(t *testing.T) {
	g := New([]*models.Task{
		task("a", 0, models.TaskStatusPending),
		task("b", 1, models.TaskStatusPending, "a"),
	})

	err := g.CheckEdges("a", []string{"b"})
	require.ErrorIs(t, err, ErrCycle)
}

func TestCheckEdges_LongCycle(t *testing.T) {
	g := New([]*models.Task{
		task("a", 0, models.TaskStatusPending),
		task("b", 1, models.TaskStatusPending, "a"),
		task("c", 2, models.TaskStatusPending, "b"),
		task("d", 3, models.TaskStatusPending, "c"),
	})

	require.ErrorIs(t, g.CheckEdges("a", []string{"d"}), ErrCycle)
	require.NoError(t, g.CheckEdges("d", []string{"a"}))
}

func TestReachesAndDependents(t *testing.T) {
	g := New([]*models.Task{
		task("a", 0, models.TaskStatusCompleted),
		task("b", 1, models.TaskStatusPending, "a"),
		task("c", 2, models.TaskStatusPending, "a", "b"),
	})

	assert.True(t, g.reaches("c", "a", nil))
	assert.False(t, g.reaches("a", "c", nil))
	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, []string{"b"}, g.Unsatisfied("c"))
	assert.Empty(t, g.Unsatisfied("b"))
}

func TestTopologicalOrder(t *testing.T) {
	g := New([]*models.Task{
		task("file", 3, models.TaskStatusPending, "review"),
		task("collect", 0, models.TaskStatusPending),
		task("review", 2, models.TaskStatusPending, "entry"),
		task("entry", 1, models.TaskStatusPending, "collect"),
		task("notes", 0, models.TaskStatusPending),
	})

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"collect", "notes", "entry", "review", "file"}, order)
}
