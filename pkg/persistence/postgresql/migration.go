package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Records are stored as JSONB documents; filterable fields are mirrored as columns.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				assignee VARCHAR(255),
				version BIGINT NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_organization_id ON workflows(organization_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE tasks (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				status VARCHAR(50) NOT NULL,
				position INT NOT NULL DEFAULT 0,
				version BIGINT NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_workflow_id ON tasks(workflow_id);

			CREATE TABLE comments (
				id VARCHAR(255) PRIMARY KEY,
				task_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				resolved BOOLEAN NOT NULL DEFAULT FALSE,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_comments_task_id ON comments(task_id);
			CREATE INDEX idx_comments_workflow_id ON comments(workflow_id);
		`,
	}
}
