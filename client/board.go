package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrUnknownTask is returned by MoveTask for a task that is not in the
// local view.
var ErrUnknownTask = errors.New("task not loaded")

// ErrUnknownList is returned by MoveTask for a destination list that is not
// in the local view.
var ErrUnknownList = errors.New("list not loaded")

const leaveTimeout = 2 * time.Second

// Board is the local view of one project. Server events are treated only as
// a signal to re-fetch; the view never merges event payloads.
type Board struct {
	api       *API
	conn      *Conn
	projectID string
	logger    *log.Logger

	mu    sync.RWMutex
	lists []domain.List
	tasks map[string][]domain.Task
	// gen changes whenever a move starts or finishes; moving counts moves
	// whose request is still in flight. A fetch is only applied when gen is
	// unchanged and no move is pending.
	gen    uint64
	moving int
}

// NewBoard builds a view of projectID. conn may be nil, in which case Sync
// returns immediately and the view only changes through Load and MoveTask.
func NewBoard(api *API, conn *Conn, projectID string, logger *log.Logger) *Board {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board{api: api, conn: conn, projectID: projectID, logger: logger, tasks: map[string][]domain.Task{}}
}

func (b *Board) ProjectID() string { return b.projectID }

// Load fetches the lists of the project and the tasks of every list, then
// replaces the view in one step. A fetch that overlaps a local move is
// discarded and repeated so it cannot undo the move.
func (b *Board) Load(ctx context.Context) error {
	for {
		b.mu.RLock()
		gen := b.gen
		b.mu.RUnlock()

		lists, tasks, err := b.fetch(ctx)
		if err != nil {
			return err
		}

		b.mu.Lock()
		if b.gen == gen && b.moving == 0 {
			b.lists = lists
			b.tasks = tasks
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
		b.logger.WithField("project", b.projectID).Debug("board changed during load, fetching again")
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (b *Board) fetch(ctx context.Context) ([]domain.List, map[string][]domain.Task, error) {
	lists, err := b.api.Lists(ctx, b.projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load lists: %w", err)
	}
	tasks := make(map[string][]domain.Task, len(lists))
	for i, l := range lists {
		ts, err := b.api.Tasks(ctx, l.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("load tasks of %s: %w", l.ID, err)
		}
		tasks[l.ID] = ts
		lists[i].Tasks = nil
	}
	return lists, tasks, nil
}

// Refresh discards the view and loads it again.
func (b *Board) Refresh(ctx context.Context) error {
	return b.Load(ctx)
}

// Lists returns the lists in board order.
func (b *Board) Lists() []domain.List {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.List, len(b.lists))
	copy(out, b.lists)
	return out
}

// Tasks returns the tasks of listID in board order.
func (b *Board) Tasks(listID string) []domain.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.tasks[listID]
	out := make([]domain.Task, len(src))
	copy(out, src)
	return out
}

// HandleEvent re-fetches the board for any task event of this project.
func (b *Board) HandleEvent(ctx context.Context, ev Event) error {
	if ev.ProjectID != "" && ev.ProjectID != b.projectID {
		return nil
	}
	if !strings.HasPrefix(ev.Name, "task:") {
		return nil
	}
	return b.Refresh(ctx)
}

// MoveTask moves taskID to the end of listID. The view is updated before the
// request is sent; if the server rejects the move the view is re-fetched and
// the server's error is returned. Moving a task onto its own list does
// nothing.
func (b *Board) MoveTask(ctx context.Context, taskID, listID string) error {
	b.mu.Lock()
	task, ok := b.findLocked(taskID)
	if !ok {
		b.mu.Unlock()
		return ErrUnknownTask
	}
	if task.ListID == listID {
		b.mu.Unlock()
		return nil
	}
	if !b.hasListLocked(listID) {
		b.mu.Unlock()
		return ErrUnknownList
	}
	order := len(b.tasks[listID])
	b.tasks[task.ListID] = without(b.tasks[task.ListID], taskID)
	task.ListID = listID
	task.Order = order
	b.tasks[listID] = append(b.tasks[listID], task)
	b.gen++
	b.moving++
	b.mu.Unlock()

	_, err := b.api.MoveTask(ctx, taskID, listID, order)

	b.mu.Lock()
	b.gen++
	b.moving--
	b.mu.Unlock()

	if err != nil {
		b.logger.WithFields(log.Fields{"task": taskID, "list": listID}).WithError(err).Warn("move rejected, reloading board")
		if rerr := b.Refresh(ctx); rerr != nil {
			b.logger.WithError(rerr).Error("failed to reload board after rejected move")
		}
		return err
	}
	return nil
}

// Sync joins the project on the real-time connection and re-fetches the
// board on every task event until ctx is done or the connection closes.
func (b *Board) Sync(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Join(ctx, b.projectID); err != nil {
		return err
	}
	defer func() {
		lctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := b.conn.Leave(lctx, b.projectID); err != nil && !errors.Is(err, ErrConnClosed) {
			b.logger.WithError(err).Debug("leave failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-b.conn.Events():
			if !ok {
				return nil
			}
			if err := b.HandleEvent(ctx, ev); err != nil {
				b.logger.WithFields(log.Fields{"event": ev.Name, "project": b.projectID}).WithError(err).Warn("failed to refresh board")
			}
		}
	}
}

func (b *Board) findLocked(taskID string) (domain.Task, bool) {
	for _, ts := range b.tasks {
		for _, t := range ts {
			if t.ID == taskID {
				return t, true
			}
		}
	}
	return domain.Task{}, false
}

func (b *Board) hasListLocked(listID string) bool {
	for _, l := range b.lists {
		if l.ID == listID {
			return true
		}
	}
	return false
}

func without(tasks []domain.Task, taskID string) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != taskID {
			out = append(out, t)
		}
	}
	return out
}
