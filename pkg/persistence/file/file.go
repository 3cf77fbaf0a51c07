// Package file provides file-based persistence for workflows, tasks and comments.
//
// Records are JSON documents under <root>/{workflows,tasks,comments}. Commits are
// serialized by a process-wide lock, so a directory must only be used by one process.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/advisoros/taskcore/pkg/models"
	"github.com/advisoros/taskcore/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	tasksDir     = "tasks"
	commentsDir  = "comments"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root      string
	mu        sync.RWMutex
	workflows *WorkflowRepository
	tasks     *TaskRepository
	comments  *CommentRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{store: p}
	p.tasks = &TaskRepository{store: p}
	p.comments = &CommentRepository{store: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflows
}

func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.tasks
}

func (fp *Persistence) CommentRepository() persistence.CommentRepository {
	return fp.comments
}

// Commit checks every expected version, stages every record to a temp file and only then
// renames them into place, under one lock. A failure before the renames leaves the store
// untouched; a failure during them restores the targets already replaced.
func (fp *Persistence) Commit(_ context.Context, changes *persistence.Changeset) error {
	if changes == nil || changes.IsEmpty() {
		return nil
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := fp.checkVersions(changes)
	if err != nil {
		return err
	}

	b := &batch{fp: fp}

	err = fp.stage(b, changes)
	if err != nil {
		b.discard()
		return err
	}

	return b.apply()
}

func (fp *Persistence) stage(b *batch, changes *persistence.Changeset) error {
	if changes.PurgeWorkflowTasks != "" {
		err := fp.purge(b, changes.PurgeWorkflowTasks)
		if err != nil {
			return err
		}
	}

	if changes.Workflow != nil {
		err := b.write(workflowsDir, changes.Workflow.Workflow.ID, changes.Workflow.Workflow)
		if err != nil {
			return err
		}
	}

	for _, write := range changes.Tasks {
		err := b.write(tasksDir, write.Task.ID, write.Task)
		if err != nil {
			return err
		}
	}

	for _, comment := range changes.Comments {
		err := b.write(commentsDir, comment.ID, comment)
		if err != nil {
			return err
		}
	}

	return nil
}

func (fp *Persistence) checkVersions(changes *persistence.Changeset) error {
	if write := changes.Workflow; write != nil {
		var stored models.Workflow

		found, err := fp.read(workflowsDir, write.Workflow.ID, &stored)
		if err != nil {
			return err
		}

		if !versionMatches(found, stored.Version, write.ExpectedVersion) {
			return persistence.Conflict("workflow", write.Workflow.ID, stored.Version)
		}
	}

	for _, write := range changes.Tasks {
		if changes.PurgeWorkflowTasks != "" && changes.PurgeWorkflowTasks == write.Task.WorkflowID {
			continue
		}

		var stored models.Task

		found, err := fp.read(tasksDir, write.Task.ID, &stored)
		if err != nil {
			return err
		}

		if !versionMatches(found, stored.Version, write.ExpectedVersion) {
			return persistence.Conflict("task", write.Task.ID, stored.Version)
		}
	}

	return nil
}

func versionMatches(found bool, stored, expected int64) bool {
	if !found {
		return expected == 0
	}

	return stored == expected
}

func (fp *Persistence) purge(b *batch, workflowID string) error {
	tasks, err := fp.listTasks(workflowID)
	if err != nil {
		return err
	}

	taskIDs := make(map[string]bool, len(tasks))

	for _, task := range tasks {
		taskIDs[task.ID] = true

		err = b.remove(tasksDir, task.ID)
		if err != nil {
			return err
		}
	}

	comments, err := fp.listComments(func(c *models.Comment) bool { return c.WorkflowID == workflowID || taskIDs[c.TaskID] })
	if err != nil {
		return err
	}

	for _, comment := range comments {
		err = b.remove(commentsDir, comment.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

func (fp *Persistence) filePath(dir, id string) string {
	return filepath.Clean(path.Join(fp.root, dir, id+".json"))
}

func (fp *Persistence) read(dir, id string, target any) (bool, error) {
	body, err := os.ReadFile(fp.filePath(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", dir, id, err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", dir, id, err)
	}

	return true, nil
}

func (fp *Persistence) ids(dir string) ([]string, error) {
	jsonFiles, err := fs.Glob(os.DirFS(path.Join(fp.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func (fp *Persistence) listTasks(workflowID string) ([]*models.Task, error) {
	ids, err := fp.ids(tasksDir)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0)

	for _, id := range ids {
		var task models.Task

		found, err := fp.read(tasksDir, id, &task)
		if err != nil {
			return nil, err
		}

		if found && task.WorkflowID == workflowID {
			tasks = append(tasks, &task)
		}
	}

	return tasks, nil
}

func (fp *Persistence) listComments(keep func(*models.Comment) bool) ([]*models.Comment, error) {
	ids, err := fp.ids(commentsDir)
	if err != nil {
		return nil, err
	}

	comments := make([]*models.Comment, 0)

	for _, id := range ids {
		var comment models.Comment

		found, err := fp.read(commentsDir, id, &comment)
		if err != nil {
			return nil, err
		}

		if found && keep(&comment) {
			comments = append(comments, &comment)
		}
	}

	return comments, nil
}
