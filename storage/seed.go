package storage

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Demo board identifiers. Seeding is keyed on them so it can run repeatedly.
const (
	DemoUsername  = "demo"
	DemoProjectID = "demo-project-1"
)

type demoTask struct {
	id, title, description, listID string
	order                          int
}

var demoTasks = []demoTask{
	{"task-1", "Set up project structure", "Initialize the project with necessary folders and files", "list-done", 0},
	{"task-2", "Design database schema", "Create the relational schema with all required models", "list-done", 1},
	{"task-3", "Implement REST API endpoints", "Build all CRUD endpoints for users, projects, lists, and tasks", "list-doing", 0},
	{"task-4", "Add real-time integration", "Implement real-time updates for task changes", "list-doing", 1},
	{"task-5", "Build frontend UI", "Create components for the task board", "list-todo", 0},
	{"task-6", "Add drag and drop functionality", "Implement drag and drop for moving tasks between lists", "list-todo", 1},
	{"task-7", "Write tests", "Add unit and integration tests for API endpoints", "list-todo", 2},
}

// SeedDemo inserts the demo user and board. Rows that already exist are left
// untouched.
func (s *Store) SeedDemo(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user userModel
		err := tx.Where(userModel{Username: DemoUsername}).
			Attrs(userModel{ID: uuid.NewString()}).
			FirstOrCreate(&user).Error
		if err != nil {
			return err
		}

		skip := clause.OnConflict{DoNothing: true}
		project := projectModel{ID: DemoProjectID, Name: "Demo Board", OwnerID: user.ID, Seq: nextSequence()}
		if err := tx.Clauses(skip).Create(&project).Error; err != nil {
			return err
		}

		lists := []listModel{
			{ID: "list-todo", Name: "Todo", Position: 0, Seq: nextSequence(), ProjectID: DemoProjectID},
			{ID: "list-doing", Name: "Doing", Position: 1, Seq: nextSequence(), ProjectID: DemoProjectID},
			{ID: "list-done", Name: "Done", Position: 2, Seq: nextSequence(), ProjectID: DemoProjectID},
		}
		if err := tx.Clauses(skip).Create(&lists).Error; err != nil {
			return err
		}

		tasks := make([]taskModel, 0, len(demoTasks))
		for _, t := range demoTasks {
			desc := t.description
			tasks = append(tasks, taskModel{
				ID:          t.id,
				Title:       t.title,
				Description: &desc,
				Position:    t.order,
				Seq:         nextSequence(),
				ListID:      t.listID,
				CreatedByID: user.ID,
			})
		}
		return tx.Clauses(skip).Create(&tasks).Error
	})
}
