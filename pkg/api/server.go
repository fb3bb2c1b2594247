// Package api implements the Task API surface: the JSON REST endpoints
// an external admin/job-intake surface (out of scope here) uses to
// create, inspect, pause, and resume crawl and create-accounts tasks,
// plus a read-only problem/testcase listing surface. Grounded on
// codeready-toolchain/tarsy/pkg/api/handlers.go's gin.Context handler
// shape and codeready-toolchain/tarsy/cmd/tarsy/main.go's router/health
// wiring, with request validation added via go-playground/validator (the
// teacher's own indirect dependency, promoted here to a direct one since
// this surface actually binds request bodies).
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wangicheng/orange-juice/pkg/database"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/repository"
)

// Dispatcher starts a task's execution asynchronously, given its id. The
// background job runner behind it is an external collaborator whose
// contract is exactly this — "start a unit of work asynchronously, given
// a task id" — with at-least-once delivery assumed, which is why the
// in-flight reuse check on crawl-testcases creation is load-bearing.
type Dispatcher interface {
	DispatchCrawl(taskID string)
	DispatchCreateAccounts(taskID string)
}

// Server wires the Task API surface to its persistence and dispatch
// collaborators.
type Server struct {
	router   *gin.Engine
	pool     *pgxpool.Pool
	tasks    *repository.TaskRepository
	problems *repository.ProblemRepository
	testcase *repository.TestCaseRepository
	dispatch Dispatcher
}

// NewServer builds a Server ready to ListenAndServe. ginMode is passed
// straight to gin.SetMode (e.g. "debug", "release").
func NewServer(pool *pgxpool.Pool, dispatch Dispatcher, ginMode string) *Server {
	gin.SetMode(ginMode)
	s := &Server{
		router:   gin.Default(),
		pool:     pool,
		tasks:    repository.NewTaskRepository(pool),
		problems: repository.NewProblemRepository(pool),
		testcase: repository.NewTestCaseRepository(pool),
		dispatch: dispatch,
	}
	s.setupRoutes()
	return s
}

// Handler returns the underlying http.Handler, primarily for tests that
// drive the router with httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tasks := s.router.Group("/tasks")
	tasks.POST("/crawl-testcases", s.handleCreateCrawlTask)
	tasks.POST("/create-accounts", s.handleCreateAccountsTask)
	tasks.GET("/:task_id", s.handleGetTask)
	tasks.POST("/:task_id/pause", s.handlePauseTask)
	tasks.POST("/:task_id/resume", s.handleResumeTask)

	s.router.GET("/problems", s.handleListProblems)
	s.router.GET("/problems/:problem_id", s.handleGetProblem)
	s.router.GET("/problems/:problem_id/testcases", s.handleListTestCases)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := database.Health(ctx, s.pool)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": health, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": health})
}

// CreateCrawlTaskRequest is the body of POST /tasks/crawl-testcases.
type CreateCrawlTaskRequest struct {
	OJProblemID     string `json:"oj_problem_id" binding:"required"`
	CrawlerSourceID int64  `json:"crawler_source_id" binding:"required"`
	HeaderCode      string `json:"header_code"`
	FooterCode      string `json:"footer_code"`
}

func (s *Server) handleCreateCrawlTask(c *gin.Context) {
	var req CreateCrawlTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem, err := s.problems.GetByDisplayID(c.Request.Context(), req.OJProblemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown oj_problem_id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if existing, err := s.tasks.FindInFlightCrawl(c.Request.Context(), problem.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if existing != nil {
		c.JSON(http.StatusAccepted, gin.H{"task_id": existing.ID})
		return
	}

	task, err := s.tasks.CreateCrawlTask(c.Request.Context(), problem.ID, req.CrawlerSourceID, req.HeaderCode, req.FooterCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.dispatch.DispatchCrawl(task.ID)
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}

// CreateAccountsTaskRequest is the body of POST /tasks/create-accounts.
type CreateAccountsTaskRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

func (s *Server) handleCreateAccountsTask(c *gin.Context) {
	var req CreateAccountsTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.tasks.CreateAccountsTask(c.Request.Context(), req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.dispatch.DispatchCreateAccounts(task.ID)
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}

// TaskResponse is the shape returned by GET /tasks/{task_id}.
type TaskResponse struct {
	ID        string             `json:"id"`
	Status    model.TaskStatus   `json:"status"`
	Progress  int                `json:"progress"`
	Result    *model.TaskResult  `json:"result,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
	TaskType  model.TaskKind     `json:"task_type"`
	Checkpoint *model.Checkpoint `json:"checkpoint,omitempty"`
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Get(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, TaskResponse{
		ID:         task.ID,
		Status:     task.Status,
		Progress:   task.Progress,
		Result:     task.Result,
		UpdatedAt:  task.UpdatedAt,
		TaskType:   task.Kind,
		Checkpoint: task.Checkpoint,
	})
}

func (s *Server) handlePauseTask(c *gin.Context) {
	id := c.Param("task_id")
	task, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !task.IsPausable() {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not in a pausable state"})
		return
	}
	// The checkpoint is left untouched here; the running worker observes
	// this status flip via its ShouldPause predicate and persists its own
	// checkpoint once it reaches a safe point.
	if err := s.tasks.RequestPause(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "task left the pausable state"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.TaskPaused})
}

// ResumeTaskRequest is the optional body of POST /tasks/{task_id}/resume.
type ResumeTaskRequest struct {
	Checkpoint *model.Checkpoint `json:"checkpoint"`
}

func (s *Server) handleResumeTask(c *gin.Context) {
	id := c.Param("task_id")
	var req ResumeTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	task, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !task.IsResumable() {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not in FAILURE or PAUSED state"})
		return
	}
	if req.Checkpoint != nil {
		if err := req.Checkpoint.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.tasks.Requeue(c.Request.Context(), id, req.Checkpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch task.Kind {
	case model.KindCrawlTestCases:
		s.dispatch.DispatchCrawl(id)
	case model.KindCreateAccounts:
		s.dispatch.DispatchCreateAccounts(id)
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": model.TaskPending})
}

func (s *Server) handleListProblems(c *gin.Context) {
	problems, err := s.problems.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"problems": problems})
}

func (s *Server) handleGetProblem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("problem_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown problem"})
		return
	}
	problem, err := s.problems.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown problem"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, problem)
}

func (s *Server) handleListTestCases(c *gin.Context) {
	problem, err := s.problems.GetByDisplayID(c.Request.Context(), c.Param("problem_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown problem"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tcs, err := s.testcase.ListByProblem(c.Request.Context(), problem.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"testcases": tcs})
}
