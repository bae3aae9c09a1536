package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard/domain"
)

// Store persists users, projects, lists and tasks in a relational database.
type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to the database selected by driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	if driver != "postgres" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY under load
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userModel{}, &projectModel{}, &listModel{}, &taskModel{})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	m := userModel{ID: uuid.NewString(), Username: username}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

// ProvisionUser writes the user, its project and the template lists in one
// transaction; a failure leaves nothing behind.
func (s *Store) ProvisionUser(ctx context.Context, username string, tpl domain.ProjectTemplate) (*domain.User, error) {
	u := userModel{ID: uuid.NewString(), Username: username}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		p := projectModel{ID: uuid.NewString(), Name: tpl.Name, OwnerID: u.ID, Seq: nextSequence()}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		if len(tpl.Lists) == 0 {
			return nil
		}
		lists := make([]listModel, 0, len(tpl.Lists))
		for i, name := range tpl.Lists {
			lists = append(lists, listModel{ID: uuid.NewString(), Name: name, Position: i, Seq: nextSequence(), ProjectID: p.ID})
		}
		return tx.Create(&lists).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return u.toDomain(), nil
}

func (s *Store) CreateProject(ctx context.Context, ownerID, name string) (*domain.Project, error) {
	m := projectModel{ID: uuid.NewString(), Name: name, OwnerID: ownerID, Seq: nextSequence()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	var models []projectModel
	err := s.withTree(s.db.WithContext(ctx)).
		Where("owner_id = ?", ownerID).
		Order("seq ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(models))
	for i := range models {
		out = append(out, *models[i].toDomain())
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error) {
	var m projectModel
	err := s.withTree(s.db.WithContext(ctx)).
		Where("id = ? AND owner_id = ?", projectID, ownerID).
		Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindOwnedProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error) {
	var m projectModel
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", projectID, ownerID).Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateList(ctx context.Context, projectID, name string, order int) (*domain.List, error) {
	m := listModel{ID: uuid.NewString(), Name: name, Position: order, Seq: nextSequence(), ProjectID: projectID}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindOwnedList(ctx context.Context, listID, ownerID string) (*domain.List, error) {
	var m listModel
	err := s.db.WithContext(ctx).
		Select("lists.*").
		Joins("JOIN projects ON projects.id = lists.project_id").
		Where("lists.id = ? AND projects.owner_id = ?", listID, ownerID).
		Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListLists(ctx context.Context, projectID string) ([]domain.List, error) {
	var models []listModel
	err := s.db.WithContext(ctx).
		Preload("Tasks", ordered).
		Where("project_id = ?", projectID).
		Order(siblingOrder).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.List, 0, len(models))
	for i := range models {
		out = append(out, *models[i].toDomain())
	}
	return out, nil
}

func (s *Store) CreateTask(ctx context.Context, task domain.Task) (*domain.Task, error) {
	m := taskModel{
		ID:          uuid.NewString(),
		Title:       task.Title,
		Description: task.Description,
		Position:    task.Order,
		Seq:         nextSequence(),
		ListID:      task.ListID,
		CreatedByID: task.CreatedByID,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindOwnedTask(ctx context.Context, taskID, ownerID string) (*domain.Task, error) {
	var m taskModel
	err := s.db.WithContext(ctx).
		Select("tasks.*").
		Joins("JOIN lists ON lists.id = tasks.list_id").
		Joins("JOIN projects ON projects.id = lists.project_id").
		Where("tasks.id = ? AND projects.owner_id = ?", taskID, ownerID).
		Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	var models []taskModel
	err := s.db.WithContext(ctx).Where("list_id = ?", listID).Order(siblingOrder).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(models))
	for i := range models {
		out = append(out, *models[i].toDomain())
	}
	return out, nil
}

func (s *Store) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.ClearDescription {
		updates["description"] = nil
	} else if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.ListID != nil {
		updates["list_id"] = *patch.ListID
	}
	if patch.Order != nil {
		updates["position"] = *patch.Order
	}
	return s.updateTask(ctx, taskID, updates)
}

// MoveTask writes list and position in a single UPDATE so no reader can see
// one without the other.
func (s *Store) MoveTask(ctx context.Context, taskID, listID string, order int) (*domain.Task, error) {
	return s.updateTask(ctx, taskID, map[string]any{"list_id": listID, "position": order})
}

func (s *Store) updateTask(ctx context.Context, taskID string, updates map[string]any) (*domain.Task, error) {
	var m taskModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			res := tx.Model(&taskModel{}).Where("id = ?", taskID).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrNotFound
			}
		}
		return tx.Where("id = ?", taskID).Take(&m).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return m.toDomain(), nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&taskModel{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) withTree(db *gorm.DB) *gorm.DB {
	return db.Preload("Lists", ordered).Preload("Lists.Tasks", ordered)
}

func ordered(db *gorm.DB) *gorm.DB {
	return db.Order(siblingOrder)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrConflict
	default:
		return err
	}
}
