package api

import (
	"context"

	log "github.com/sirupsen/logrus"

	"taskboard/broadcast"
	"taskboard/domain"
)

// Identity resolves the caller from the identity header.
type Identity interface {
	EnsureUser(ctx context.Context, token string) (*domain.User, error)
	Register(ctx context.Context, username string) (*domain.User, error)
}

// Boards serves projects and lists.
type Boards interface {
	CreateProject(ctx context.Context, user *domain.User, name string) (*domain.Project, error)
	ListProjects(ctx context.Context, user *domain.User) ([]domain.Project, error)
	GetProject(ctx context.Context, user *domain.User, projectID string) (*domain.Project, error)
	GetBoard(ctx context.Context, user *domain.User, projectID string) (*domain.Board, error)
	Authorize(ctx context.Context, user *domain.User, projectID string) error
	CreateList(ctx context.Context, user *domain.User, in domain.CreateListInput) (*domain.List, error)
	ListLists(ctx context.Context, user *domain.User, projectID string) ([]domain.List, error)
}

// Tasks performs task mutations.
type Tasks interface {
	Create(ctx context.Context, user *domain.User, in domain.CreateTaskInput) (*domain.Task, error)
	List(ctx context.Context, user *domain.User, listID string) ([]domain.Task, error)
	Update(ctx context.Context, user *domain.User, taskID string, patch domain.TaskPatch) (*domain.Task, error)
	Move(ctx context.Context, user *domain.User, taskID string, in domain.MoveTaskInput) (*domain.Task, error)
	Delete(ctx context.Context, user *domain.User, taskID string) error
}

// Rooms manages real-time group membership.
type Rooms interface {
	Subscribe() *broadcast.Subscription
	Join(sub *broadcast.Subscription, projectID string)
	Leave(sub *broadcast.Subscription, projectID string)
	Unsubscribe(sub *broadcast.Subscription)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the handlers depend on.
type Services struct {
	Identity Identity
	Boards   Boards
	Tasks    Tasks
	Rooms    Rooms
	Health   HealthChecker
	Logger   *log.Logger

	// AllowedOrigins is passed to the WebSocket origin check.
	AllowedOrigins []string
}
