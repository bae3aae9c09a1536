// Package client talks to the task board API and keeps a local view of one
// board in sync with it.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

// HeaderUsername carries the identity token on every request.
const HeaderUsername = "X-Username"

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// API is an HTTP client for the REST surface.
type API struct {
	baseURL  string
	username string
	client   *http.Client
}

// NewAPI returns a client for baseURL (for example http://localhost:3000)
// acting as username. A nil httpClient uses http.DefaultClient.
func NewAPI(baseURL, username string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), username: username, client: httpClient}
}

// BaseURL returns the server root the client was built with.
func (a *API) BaseURL() string { return a.baseURL }

// Username returns the identity token sent with every request.
func (a *API) Username() string { return a.username }

func (a *API) Me(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if err := a.do(ctx, http.MethodGet, "/api/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	var out domain.User
	if err := a.do(ctx, http.MethodPost, "/api/users", map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Projects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	if err := a.do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreateProject(ctx context.Context, name string) (*domain.Project, error) {
	var out domain.Project
	if err := a.do(ctx, http.MethodPost, "/api/projects", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Project(ctx context.Context, projectID string) (*domain.Project, error) {
	var out domain.Project
	if err := a.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Board(ctx context.Context, projectID string) (*domain.Board, error) {
	var out domain.Board
	if err := a.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/board", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInput is the body of CreateList. A nil Order lets the server default it.
type ListInput struct {
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Order     *int   `json:"order,omitempty"`
}

func (a *API) CreateList(ctx context.Context, in ListInput) (*domain.List, error) {
	var out domain.List
	if err := a.do(ctx, http.MethodPost, "/api/lists", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Lists(ctx context.Context, projectID string) ([]domain.List, error) {
	var out []domain.List
	if err := a.do(ctx, http.MethodGet, "/api/lists/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TaskInput is the body of CreateTask.
type TaskInput struct {
	ListID      string  `json:"listId"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

func (a *API) CreateTask(ctx context.Context, in TaskInput) (*domain.Task, error) {
	var out domain.Task
	if err := a.do(ctx, http.MethodPost, "/api/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Tasks(ctx context.Context, listID string) ([]domain.Task, error) {
	var out []domain.Task
	if err := a.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(listID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TaskUpdate is the body of UpdateTask. Nil fields are left out of the
// request; ClearDescription sends an explicit null.
type TaskUpdate struct {
	Title            *string
	Description      *string
	ClearDescription bool
	ListID           *string
	Order            *int
}

func (u TaskUpdate) body() map[string]any {
	body := make(map[string]any, 4)
	if u.Title != nil {
		body["title"] = *u.Title
	}
	if u.ClearDescription {
		body["description"] = nil
	} else if u.Description != nil {
		body["description"] = *u.Description
	}
	if u.ListID != nil {
		body["listId"] = *u.ListID
	}
	if u.Order != nil {
		body["order"] = *u.Order
	}
	return body
}

func (a *API) UpdateTask(ctx context.Context, taskID string, u TaskUpdate) (*domain.Task, error) {
	var out domain.Task
	if err := a.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(taskID), u.body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) MoveTask(ctx context.Context, taskID, listID string, order int) (*domain.Task, error) {
	var out domain.Task
	body := map[string]any{"listId": listID, "order": order}
	if err := a.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/move", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) DeleteTask(ctx context.Context, taskID string) error {
	return a.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.username != "" {
		req.Header.Set(HeaderUsername, a.username)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(data, &apiErr)
		return &StatusError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
