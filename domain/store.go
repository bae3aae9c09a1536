package domain

import "context"

// Store is the relational persistence the services run against.
//
// Lookups that take an ownerID combine existence and ownership in a single
// query and return ErrNotFound for both absent and foreign rows. Lists and
// tasks come back ascending by order, ties broken by creation sequence.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username string) (*User, error)
	// ProvisionUser creates the user together with a project built from tpl in
	// one transaction. It returns ErrConflict if the username already exists.
	ProvisionUser(ctx context.Context, username string, tpl ProjectTemplate) (*User, error)

	CreateProject(ctx context.Context, ownerID, name string) (*Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]Project, error)
	GetProject(ctx context.Context, projectID, ownerID string) (*Project, error)
	FindOwnedProject(ctx context.Context, projectID, ownerID string) (*Project, error)

	CreateList(ctx context.Context, projectID, name string, order int) (*List, error)
	FindOwnedList(ctx context.Context, listID, ownerID string) (*List, error)
	ListLists(ctx context.Context, projectID string) ([]List, error)

	CreateTask(ctx context.Context, task Task) (*Task, error)
	FindOwnedTask(ctx context.Context, taskID, ownerID string) (*Task, error)
	ListTasks(ctx context.Context, listID string) ([]Task, error)
	UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (*Task, error)
	// MoveTask sets list and order in one row update.
	MoveTask(ctx context.Context, taskID, listID string, order int) (*Task, error)
	DeleteTask(ctx context.Context, taskID string) error

	Ping(ctx context.Context) error
}

// BoardInvalidator drops cached board views after a write.
type BoardInvalidator interface {
	EvictBoard(ctx context.Context, projectID string)
}
