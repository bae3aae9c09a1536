package storage

import (
	"time"

	"taskboard/domain"
)

type userModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"size:50;not null;uniqueIndex"`
	CreatedAt time.Time

	Projects []projectModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Tasks    []taskModel    `gorm:"foreignKey:CreatedByID"`
}

func (userModel) TableName() string { return "users" }

type projectModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:100;not null"`
	OwnerID   string `gorm:"size:36;not null;index"`
	Seq       int64  `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Lists []listModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (projectModel) TableName() string { return "projects" }

type listModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:100;not null"`
	Position  int    `gorm:"column:position;not null;default:0"`
	Seq       int64  `gorm:"not null"`
	ProjectID string `gorm:"size:36;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Tasks []taskModel `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
}

func (listModel) TableName() string { return "lists" }

type taskModel struct {
	ID          string  `gorm:"primaryKey;size:36"`
	Title       string  `gorm:"size:200;not null"`
	Description *string `gorm:"type:text"`
	Position    int     `gorm:"column:position;not null;default:0;index:idx_tasks_list_position,priority:2"`
	Seq         int64   `gorm:"not null"`
	ListID      string  `gorm:"size:36;not null;index:idx_tasks_list_position,priority:1"`
	CreatedByID string  `gorm:"size:36;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskModel) TableName() string { return "tasks" }

// siblings sort by position, then creation sequence, then id
const siblingOrder = "position ASC, seq ASC, id ASC"

func (m *userModel) toDomain() *domain.User {
	return &domain.User{ID: m.ID, Username: m.Username, CreatedAt: m.CreatedAt}
}

func (m *projectModel) toDomain() *domain.Project {
	p := &domain.Project{
		ID:        m.ID,
		Name:      m.Name,
		OwnerID:   m.OwnerID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Lists:     make([]domain.List, 0, len(m.Lists)),
	}
	for i := range m.Lists {
		p.Lists = append(p.Lists, *m.Lists[i].toDomain())
	}
	return p
}

func (m *listModel) toDomain() *domain.List {
	l := &domain.List{
		ID:        m.ID,
		Name:      m.Name,
		Order:     m.Position,
		ProjectID: m.ProjectID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Tasks:     make([]domain.Task, 0, len(m.Tasks)),
	}
	for i := range m.Tasks {
		l.Tasks = append(l.Tasks, *m.Tasks[i].toDomain())
	}
	return l
}

func (m *taskModel) toDomain() *domain.Task {
	return &domain.Task{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Order:       m.Position,
		ListID:      m.ListID,
		CreatedByID: m.CreatedByID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
