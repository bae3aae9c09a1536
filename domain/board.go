package domain

import "time"

// User is the owner of projects. Username doubles as the identity token.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project is a named board owned by exactly one user.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Lists     []List    `json:"lists"`
}

// List is a column of a project. Order is compared ascending and is not unique.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tasks     []Task    `json:"tasks"`
}

// Task is a card inside a list.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Order       int       `json:"order"`
	ListID      string    `json:"listId"`
	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Board is the render tree of a single project.
type Board struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Lists []List `json:"lists"`
}

// BoardOf trims a project down to its board view.
func BoardOf(p *Project) *Board {
	lists := p.Lists
	if lists == nil {
		lists = []List{}
	}
	return &Board{ID: p.ID, Name: p.Name, Lists: lists}
}

// TaskPatch carries the fields supplied to a partial task update.
// A nil pointer means the field was not supplied.
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	ListID           *string
	Order            *int
}

// ProjectTemplate describes the board created for a user on first sight.
// Lists receive orders matching their index.
type ProjectTemplate struct {
	Name  string
	Lists []string
}

// DefaultBoard is provisioned for every new identity.
var DefaultBoard = ProjectTemplate{
	Name:  "My Task Board",
	Lists: []string{"To Do", "In Progress", "Done"},
}
