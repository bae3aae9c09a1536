package domain

import "context"

// Task lifecycle events relayed to a project's broadcast group.
const (
	TaskCreated = "task:created"
	TaskUpdated = "task:updated"
	TaskMoved   = "task:moved"
	TaskDeleted = "task:deleted"
)

// Event is a lifecycle notification scoped to one project. Data holds the full
// Task record, or TaskDeletedData for deletions.
type Event struct {
	Name      string `json:"event"`
	ProjectID string `json:"projectId"`
	Data      any    `json:"data"`
}

// TaskDeletedData is the payload of TaskDeleted.
type TaskDeletedData struct {
	TaskID string `json:"taskId"`
}

// Publisher delivers events to a project's broadcast group.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
