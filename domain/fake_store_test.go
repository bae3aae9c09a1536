package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
)

type fakeStore struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*User
	projects map[string]*Project
	lists    map[string]*List
	tasks    map[string]*Task
	seqOf    map[string]int

	provisionCalls int
	pingErr        error
	failWrites     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*User{},
		projects: map[string]*Project{},
		lists:    map[string]*List{},
		tasks:    map[string]*Task{},
		seqOf:    map[string]int{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	id := prefix + "-" + strconv.Itoa(f.seq)
	f.seqOf[id] = f.seq
	return id
}

func (f *fakeStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) createUserLocked(username string) (*User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return nil, ErrConflict
		}
	}
	u := &User{ID: f.nextID("user"), Username: username}
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, username string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createUserLocked(username)
}

func (f *fakeStore) ProvisionUser(ctx context.Context, username string, tpl ProjectTemplate) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionCalls++
	u, err := f.createUserLocked(username)
	if err != nil {
		return nil, err
	}
	p := f.createProjectLocked(u.ID, tpl.Name)
	for i, name := range tpl.Lists {
		f.createListLocked(p.ID, name, i)
	}
	return u, nil
}

func (f *fakeStore) createProjectLocked(ownerID, name string) *Project {
	p := &Project{ID: f.nextID("project"), Name: name, OwnerID: ownerID}
	f.projects[p.ID] = p
	return p
}

func (f *fakeStore) CreateProject(ctx context.Context, ownerID, name string) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	p := f.createProjectLocked(ownerID, name)
	cp := *p
	cp.Lists = []List{}
	return &cp, nil
}

func (f *fakeStore) nestedLocked(p *Project) Project {
	cp := *p
	cp.Lists = f.listsLocked(p.ID)
	for i := range cp.Lists {
		cp.Lists[i].Tasks = f.tasksLocked(cp.Lists[i].ID)
	}
	return cp
}

func (f *fakeStore) ListProjects(ctx context.Context, ownerID string) ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Project{}
	for _, p := range f.projects {
		if p.OwnerID == ownerID {
			out = append(out, f.nestedLocked(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return f.seqOf[out[i].ID] < f.seqOf[out[j].ID] })
	return out, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID, ownerID string) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := f.nestedLocked(p)
	return &cp, nil
}

func (f *fakeStore) FindOwnedProject(ctx context.Context, projectID, ownerID string) (*Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) createListLocked(projectID, name string, order int) *List {
	l := &List{ID: f.nextID("list"), Name: name, Order: order, ProjectID: projectID}
	f.lists[l.ID] = l
	return l
}

func (f *fakeStore) CreateList(ctx context.Context, projectID, name string, order int) (*List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.createListLocked(projectID, name, order)
	cp := *l
	cp.Tasks = []Task{}
	return &cp, nil
}

func (f *fakeStore) FindOwnedList(ctx context.Context, listID, ownerID string) (*List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[listID]
	if !ok {
		return nil, ErrNotFound
	}
	if p, ok := f.projects[l.ProjectID]; !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) listsLocked(projectID string) []List {
	out := []List{}
	for _, l := range f.lists {
		if l.ProjectID == projectID {
			out = append(out, *l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return f.seqOf[out[i].ID] < f.seqOf[out[j].ID]
	})
	return out
}

func (f *fakeStore) ListLists(ctx context.Context, projectID string) ([]List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.listsLocked(projectID)
	for i := range out {
		out[i].Tasks = f.tasksLocked(out[i].ID)
	}
	return out, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, task Task) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	task.ID = f.nextID("task")
	f.tasks[task.ID] = &task
	cp := task
	return &cp, nil
}

func (f *fakeStore) FindOwnedTask(ctx context.Context, taskID, ownerID string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	l := f.lists[t.ListID]
	if p, ok := f.projects[l.ProjectID]; !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) tasksLocked(listID string) []Task {
	out := []Task{}
	for _, t := range f.tasks {
		if t.ListID == listID {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return f.seqOf[out[i].ID] < f.seqOf[out[j].ID]
	})
	return out
}

func (f *fakeStore) ListTasks(ctx context.Context, listID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasksLocked(listID), nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.ClearDescription {
		t.Description = nil
	} else if patch.Description != nil {
		d := *patch.Description
		t.Description = &d
	}
	if patch.ListID != nil {
		t.ListID = *patch.ListID
	}
	if patch.Order != nil {
		t.Order = *patch.Order
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) MoveTask(ctx context.Context, taskID, listID string, order int) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return nil, f.failWrites
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	t.ListID = listID
	t.Order = order
	cp := *t
	return &cp, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) byName(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type recordingInvalidator struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingInvalidator) EvictBoard(ctx context.Context, projectID string) {
	r.mu.Lock()
	r.evicted = append(r.evicted, projectID)
	r.mu.Unlock()
}

var errStoreDown = errors.New("store down")
