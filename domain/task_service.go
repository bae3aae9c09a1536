package domain

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// CreateTaskInput is the payload of TaskService.Create.
type CreateTaskInput struct {
	ListID      string
	Title       string
	Description *string
	Order       *int
}

// MoveTaskInput is the payload of TaskService.Move. Both fields are required.
type MoveTaskInput struct {
	ListID string
	Order  *int
}

// TaskService performs task mutations. Every operation re-resolves the
// ownership chain task -> list -> project -> user before writing and
// publishes a lifecycle event to the owning project afterwards.
type TaskService struct {
	store  Store
	pub    Publisher
	boards BoardInvalidator
	logger *log.Logger
}

func NewTaskService(store Store, pub Publisher, boards BoardInvalidator, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskService{store: store, pub: pub, boards: boards, logger: logger}
}

func (s *TaskService) Create(ctx context.Context, user *User, in CreateTaskInput) (*Task, error) {
	var v validator
	v.length("title", in.Title, 1, maxTitleLen)
	v.required("listId", in.ListID != "")
	v.order("order", in.Order)
	if err := v.err(); err != nil {
		return nil, err
	}

	list, err := s.store.FindOwnedList(ctx, in.ListID, user.ID)
	if err != nil {
		return nil, wrapNotFound(err, "List", in.ListID)
	}

	task := Task{
		Title:       in.Title,
		Description: in.Description,
		ListID:      list.ID,
		CreatedByID: user.ID,
	}
	if in.Order != nil {
		task.Order = *in.Order
	}
	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, TaskCreated, created, list.ProjectID)
	return created, nil
}

func (s *TaskService) List(ctx context.Context, user *User, listID string) ([]Task, error) {
	if _, err := s.store.FindOwnedList(ctx, listID, user.ID); err != nil {
		return nil, wrapNotFound(err, "List", listID)
	}
	return s.store.ListTasks(ctx, listID)
}

// Update applies a partial patch. A changed listId is checked against the
// caller's ownership before anything is written.
func (s *TaskService) Update(ctx context.Context, user *User, taskID string, patch TaskPatch) (*Task, error) {
	var v validator
	if patch.Title != nil {
		v.length("title", *patch.Title, 1, maxTitleLen)
	}
	if patch.ListID != nil {
		v.required("listId", *patch.ListID != "")
	}
	v.order("order", patch.Order)
	if err := v.err(); err != nil {
		return nil, err
	}

	existing, src, err := s.ownedTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	dstProject := src.ProjectID
	if patch.ListID != nil && *patch.ListID != existing.ListID {
		dst, err := s.store.FindOwnedList(ctx, *patch.ListID, user.ID)
		if err != nil {
			return nil, wrapNotFound(err, "New list", *patch.ListID)
		}
		dstProject = dst.ProjectID
	}

	task, err := s.store.UpdateTask(ctx, taskID, patch)
	if err != nil {
		return nil, wrapNotFound(err, "Task", taskID)
	}
	s.emit(ctx, TaskUpdated, task, src.ProjectID, dstProject)
	return task, nil
}

// Move sets list and order together. Siblings are never renumbered; callers
// pick the order, conventionally the destination's task count.
func (s *TaskService) Move(ctx context.Context, user *User, taskID string, in MoveTaskInput) (*Task, error) {
	var v validator
	v.required("listId", in.ListID != "")
	v.required("order", in.Order != nil)
	v.order("order", in.Order)
	if err := v.err(); err != nil {
		return nil, err
	}

	_, src, err := s.ownedTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	dst, err := s.store.FindOwnedList(ctx, in.ListID, user.ID)
	if err != nil {
		return nil, wrapNotFound(err, "Target list", in.ListID)
	}

	task, err := s.store.MoveTask(ctx, taskID, dst.ID, *in.Order)
	if err != nil {
		return nil, wrapNotFound(err, "Task", taskID)
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "from": src.ID, "to": dst.ID, "order": task.Order}).Debug("task moved")
	s.emit(ctx, TaskMoved, task, src.ProjectID, dst.ProjectID)
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, user *User, taskID string) error {
	_, src, err := s.ownedTask(ctx, user, taskID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return wrapNotFound(err, "Task", taskID)
	}
	s.emit(ctx, TaskDeleted, TaskDeletedData{TaskID: taskID}, src.ProjectID)
	return nil
}

func (s *TaskService) ownedTask(ctx context.Context, user *User, taskID string) (*Task, *List, error) {
	task, err := s.store.FindOwnedTask(ctx, taskID, user.ID)
	if err != nil {
		return nil, nil, wrapNotFound(err, "Task", taskID)
	}
	list, err := s.store.FindOwnedList(ctx, task.ListID, user.ID)
	if err != nil {
		return nil, nil, wrapNotFound(err, "Task", taskID)
	}
	return task, list, nil
}

// emit evicts cached boards and publishes to every distinct project touched.
// Publish failures never fail the mutation.
func (s *TaskService) emit(ctx context.Context, name string, data any, projects ...string) {
	seen := make(map[string]struct{}, len(projects))
	for _, projectID := range projects {
		if _, dup := seen[projectID]; dup {
			continue
		}
		seen[projectID] = struct{}{}
		if s.boards != nil {
			s.boards.EvictBoard(ctx, projectID)
		}
		if s.pub == nil {
			continue
		}
		if err := s.pub.Publish(ctx, Event{Name: name, ProjectID: projectID, Data: data}); err != nil {
			s.logger.WithFields(log.Fields{"event": name, "project": projectID}).WithError(err).Warn("failed to publish task event")
		}
	}
}
