package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services) {
	logger := svc.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	e.GET("/", index)
	e.GET("/healthz", healthz(svc.Health))
	e.POST("/api/users", createUser(svc.Identity))
	e.GET("/ws", realtime(svc, logger), RequireUser(svc.Identity, true))

	g := e.Group("/api", RequireUser(svc.Identity, false))
	g.GET("/me", me)
	g.GET("/users/me", me)

	g.POST("/projects", createProject(svc.Boards), Observe(logger, "board.project.create"))
	g.GET("/projects", listProjects(svc.Boards), Observe(logger, "board.project.list"))
	g.GET("/projects/:id", getProject(svc.Boards), Observe(logger, "board.project.get"))
	g.GET("/projects/:id/board", getBoard(svc.Boards), Observe(logger, "board.read"))
	g.GET("/projects/:id/stream", streamProject(svc, logger))

	g.POST("/lists", createList(svc.Boards), Observe(logger, "board.list.create"))
	g.GET("/lists/:projectId", listLists(svc.Boards), Observe(logger, "board.list.list"))

	g.POST("/tasks", createTask(svc.Tasks), Observe(logger, "task.create"))
	g.GET("/tasks/:listId", listTasks(svc.Tasks), Observe(logger, "task.list"))
	g.PATCH("/tasks/:id", updateTask(svc.Tasks), Observe(logger, "task.update"))
	g.POST("/tasks/:id/move", moveTask(svc.Tasks), Observe(logger, "task.move"))
	g.DELETE("/tasks/:id", deleteTask(svc.Tasks), Observe(logger, "task.delete"))
}

type serviceIndex struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
	Realtime  map[string]any    `json:"realtime"`
}

func index(c echo.Context) error {
	return c.JSON(http.StatusOK, serviceIndex{
		Message: "Task Board API",
		Endpoints: map[string]string{
			"health":   "GET /healthz",
			"me":       "GET /api/users/me",
			"users":    "POST /api/users",
			"projects": "GET|POST /api/projects, GET /api/projects/:id, GET /api/projects/:id/board",
			"lists":    "POST /api/lists, GET /api/lists/:projectId",
			"tasks":    "POST /api/tasks, GET /api/tasks/:listId, PATCH|DELETE /api/tasks/:id, POST /api/tasks/:id/move",
		},
		Realtime: map[string]any{
			"websocket": "GET /ws",
			"sse":       "GET /api/projects/:id/stream",
			"client":    []string{"join", "leave"},
			"events":    []string{domain.TaskCreated, domain.TaskUpdated, domain.TaskMoved, domain.TaskDeleted},
		},
	})
}

func healthz(h HealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.Logger().Errorf("health check failed: %v", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

func me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

func createUser(identity Identity) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createUserRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		user, err := identity.Register(c.Request().Context(), req.Username)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, user)
	}
}

func createProject(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createProjectRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		p, err := boards.CreateProject(c.Request().Context(), currentUser(c), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		observe(c).SetProject(p.ID)
		return c.JSON(http.StatusCreated, p)
	}
}

func listProjects(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		projects, err := boards.ListProjects(c.Request().Context(), currentUser(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func getProject(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("id")
		observe(c).SetProject(projectID)
		p, err := boards.GetProject(c.Request().Context(), currentUser(c), projectID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, p)
	}
}

func getBoard(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("id")
		observe(c).SetProject(projectID)
		b, err := boards.GetBoard(c.Request().Context(), currentUser(c), projectID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func createList(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createListRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		observe(c).SetProject(req.ProjectID)
		l, err := boards.CreateList(c.Request().Context(), currentUser(c), domain.CreateListInput{
			Name:      req.Name,
			ProjectID: req.ProjectID,
			Order:     req.Order,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, l)
	}
}

func listLists(boards Boards) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("projectId")
		observe(c).SetProject(projectID)
		lists, err := boards.ListLists(c.Request().Context(), currentUser(c), projectID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, lists)
	}
}

func createTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		t, err := tasks.Create(c.Request().Context(), currentUser(c), domain.CreateTaskInput{
			ListID:      req.ListID,
			Title:       req.Title,
			Description: req.Description,
			Order:       req.Order,
		})
		if err != nil {
			return respondError(c, err)
		}
		observe(c).SetTask(t.ID)
		return c.JSON(http.StatusCreated, t)
	}
}

func listTasks(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := tasks.List(c.Request().Context(), currentUser(c), c.Param("listId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func updateTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID := c.Param("id")
		observe(c).SetTask(taskID)
		var req updateTaskRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		patch, err := req.patch()
		if err != nil {
			return respondError(c, err)
		}
		t, err := tasks.Update(c.Request().Context(), currentUser(c), taskID, patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

// patch converts the request into a TaskPatch. Only description may be
// cleared with an explicit null.
func (r updateTaskRequest) patch() (domain.TaskPatch, error) {
	var p domain.TaskPatch
	switch {
	case r.Title.Null:
		return p, nullField("title")
	case r.ListID.Null:
		return p, nullField("listId")
	case r.Order.Null:
		return p, nullField("order")
	}
	if r.Title.Set {
		p.Title = &r.Title.Value
	}
	if r.Description.Null {
		p.ClearDescription = true
	} else if r.Description.Set {
		p.Description = &r.Description.Value
	}
	if r.ListID.Set {
		p.ListID = &r.ListID.Value
	}
	if r.Order.Set {
		p.Order = &r.Order.Value
	}
	return p, nil
}

func moveTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID := c.Param("id")
		observe(c).SetTask(taskID)
		var req moveTaskRequest
		if err := decodeBody(c.Request(), &req); err != nil {
			return respondError(c, err)
		}
		in := domain.MoveTaskInput{Order: req.Order}
		if req.ListID != nil {
			in.ListID = *req.ListID
		}
		t, err := tasks.Move(c.Request().Context(), currentUser(c), taskID, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(tasks Tasks) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID := c.Param("id")
		observe(c).SetTask(taskID)
		if err := tasks.Delete(c.Request().Context(), currentUser(c), taskID); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
