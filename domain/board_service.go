package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// BoardService serves projects and lists of the requesting user.
type BoardService struct {
	store  Store
	boards BoardInvalidator
	logger *log.Logger
}

func NewBoardService(store Store, boards BoardInvalidator, logger *log.Logger) *BoardService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BoardService{store: store, boards: boards, logger: logger}
}

// CreateListInput is the payload of CreateList.
type CreateListInput struct {
	Name      string
	ProjectID string
	Order     *int
}

func (s *BoardService) CreateProject(ctx context.Context, user *User, name string) (*Project, error) {
	var v validator
	v.length("name", name, 1, maxNameLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	return s.store.CreateProject(ctx, user.ID, name)
}

func (s *BoardService) ListProjects(ctx context.Context, user *User) ([]Project, error) {
	return s.store.ListProjects(ctx, user.ID)
}

// GetProject returns the full project tree. Absent and foreign projects are
// both reported as NotFound.
func (s *BoardService) GetProject(ctx context.Context, user *User, projectID string) (*Project, error) {
	p, err := s.store.GetProject(ctx, projectID, user.ID)
	if err != nil {
		return nil, wrapNotFound(err, "Project", projectID)
	}
	return p, nil
}

func (s *BoardService) GetBoard(ctx context.Context, user *User, projectID string) (*Board, error) {
	p, err := s.GetProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}
	return BoardOf(p), nil
}

// Authorize checks that projectID exists and belongs to user.
func (s *BoardService) Authorize(ctx context.Context, user *User, projectID string) error {
	_, err := s.store.FindOwnedProject(ctx, projectID, user.ID)
	return wrapNotFound(err, "Project", projectID)
}

func (s *BoardService) CreateList(ctx context.Context, user *User, in CreateListInput) (*List, error) {
	var v validator
	v.length("name", in.Name, 1, maxNameLen)
	v.required("projectId", in.ProjectID != "")
	v.order("order", in.Order)
	if err := v.err(); err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, user, in.ProjectID); err != nil {
		return nil, err
	}
	order := 0
	if in.Order != nil {
		order = *in.Order
	}
	l, err := s.store.CreateList(ctx, in.ProjectID, in.Name, order)
	if err != nil {
		return nil, err
	}
	if s.boards != nil {
		s.boards.EvictBoard(ctx, in.ProjectID)
	}
	return l, nil
}

func (s *BoardService) ListLists(ctx context.Context, user *User, projectID string) ([]List, error) {
	if err := s.Authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.store.ListLists(ctx, projectID)
}

func wrapNotFound(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return notFound(entity, id)
	}
	return err
}
