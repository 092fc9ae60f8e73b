package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/repository"
	"ops-dashboard/internal/service"
)

// Tasks is the board side of the service layer.
type Tasks interface {
	Board(ctx context.Context, f board.Filters, s board.Sort) ([]board.View, error)
	CreateTask(ctx context.Context, input service.TaskInput) (*model.Task, error)
	Transition(ctx context.Context, taskID uint, to board.Status) (board.Item, error)
	Bulk(ctx context.Context, ids []uint, m board.Mutation) board.BulkResult
	DeleteTask(ctx context.Context, taskID uint) error
}

// Series is the recurring-template side of the service layer.
type Series interface {
	Create(ctx context.Context, input service.SeriesInput) (*model.Series, backfill.Result, error)
	Backfill(ctx context.Context, seriesID uint) (backfill.Result, error)
	UpdateRule(ctx context.Context, seriesID uint, spec recurrence.RuleSpec) (*model.Series, error)
	Delete(ctx context.Context, seriesID uint) error
}

const defaultPreviewCount = 5

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, tasks Tasks, series Series, events Events, clk clock.Clock, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	h := &handlers{tasks: tasks, series: series, events: events, clock: clk, loc: loc}

	e.GET("/api/board", h.getBoard)
	e.POST("/api/tasks", h.postTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/tasks/:id/status", h.postStatus)
	e.POST("/api/board/bulk", h.postBulk)
	e.POST("/api/rules/validate", h.validateRule)
	e.POST("/api/rules/preview", h.previewRule)
	e.POST("/api/series/:id/backfill", h.backfillSeries)
	e.PUT("/api/series/:id/rule", h.putRule)
	e.DELETE("/api/series/:id", h.deleteSeries)
	e.GET("/api/events", h.listEvents)
	e.POST("/api/events", h.postEvent)
	e.DELETE("/api/events/:id", h.deleteEvent)
	e.GET("/healthz", healthz)
}

type handlers struct {
	tasks  Tasks
	series Series
	events Events
	clock  clock.Clock
	loc    *time.Location
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type boardResponse struct {
	Items []board.View `json:"items"`
}

type createTaskRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Space       string               `json:"space"`
	Priority    string               `json:"priority"`
	Assignee    string               `json:"assignee"`
	DueDate     string               `json:"dueDate"`
	Rule        *recurrence.RuleSpec `json:"rule,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type bulkRequest struct {
	IDs      []uint         `json:"ids"`
	Mutation board.Mutation `json:"mutation"`
}

type ruleRequest struct {
	Rule   recurrence.RuleSpec `json:"rule"`
	Anchor string              `json:"anchor"`
	Count  int                 `json:"count"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Summary string `json:"summary,omitempty"`
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) getBoard(c echo.Context) error {
	f := board.Filters{
		Status:   board.Status(c.QueryParam("status")),
		Priority: board.Priority(c.QueryParam("priority")),
		Urgency:  board.Urgency(c.QueryParam("urgency")),
		Search:   c.QueryParam("search"),
	}
	if raw := c.QueryParam("spaceId"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid space id"})
		}
		f.SpaceID = &id
	}
	if raw := c.QueryParam("showCompleted"); raw != "" {
		show, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid showCompleted"})
		}
		f.ShowCompleted = show
	}

	field, ok := board.ParseSortField(c.QueryParam("sort"))
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid sort field"})
	}
	desc, _ := strconv.ParseBool(c.QueryParam("desc"))

	views, err := h.tasks.Board(c.Request().Context(), f, board.Sort{Field: field, Desc: desc})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, boardResponse{Items: views})
}

func (h *handlers) postTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}

	input := service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Space:       req.Space,
		Priority:    req.Priority,
		Assignee:    req.Assignee,
		Rule:        req.Rule,
	}
	if req.DueDate != "" {
		due, err := parseTime(req.DueDate, h.loc)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid due date", Field: "dueDate"})
		}
		input.DueDate = &due
	}

	task, err := h.tasks.CreateTask(c.Request().Context(), input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, repository.TaskToItem(*task))
}

func (h *handlers) deleteTask(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task id"})
	}
	if err := h.tasks.DeleteTask(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) postStatus(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid task id"})
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	status, err := board.ParseStatus(req.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "status"})
	}

	item, err := h.tasks.Transition(c.Request().Context(), id, status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, board.View{Item: item, Urgency: board.Classify(item.DueDate, item.Status, h.clock.Now())})
}

// postBulk answers 200 even when some ids failed; the body carries both lists.
func (h *handlers) postBulk(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "no ids selected", Field: "ids"})
	}
	if err := req.Mutation.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "mutation"})
	}
	return c.JSON(http.StatusOK, h.tasks.Bulk(c.Request().Context(), req.IDs, req.Mutation))
}

func (h *handlers) validateRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	rule, err := recurrence.NewRule(req.Rule)
	if err != nil {
		var invalid *recurrence.InvalidRuleError
		if errors.As(err, &invalid) {
			return c.JSON(http.StatusOK, validateResponse{Field: invalid.Field, Reason: invalid.Reason})
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, validateResponse{Valid: true, Summary: recurrence.Describe(rule)})
}

func (h *handlers) previewRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	anchor := h.clock.Now().In(h.loc)
	if req.Anchor != "" {
		var err error
		anchor, err = parseTime(req.Anchor, h.loc)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid anchor", Field: "anchor"})
		}
	}
	count := req.Count
	if count <= 0 {
		count = defaultPreviewCount
	}

	preview, err := service.Preview(req.Rule, anchor, count)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

func (h *handlers) backfillSeries(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid series id"})
	}
	res, err := h.series.Backfill(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, normalizeResult(res))
}

// normalizeResult keeps empty lists as [] rather than null in JSON.
func normalizeResult(res backfill.Result) backfill.Result {
	if res.Created == nil {
		res.Created = []time.Time{}
	}
	if res.Failed == nil {
		res.Failed = []backfill.DateFailure{}
	}
	return res
}

func (h *handlers) putRule(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid series id"})
	}
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	series, err := h.series.UpdateRule(c.Request().Context(), id, req.Rule)
	if err != nil {
		return h.fail(c, err)
	}
	spec, err := repository.RuleSpecOf(*series)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, spec)
}

func (h *handlers) deleteSeries(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid series id"})
	}
	if err := h.series.Delete(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail maps service errors to status codes. Anything unrecognized is a 500.
func (h *handlers) fail(c echo.Context, err error) error {
	var invalid *recurrence.InvalidRuleError
	switch {
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: invalid.Field})
	case errors.Is(err, board.ErrItemNotFound), errors.Is(err, backfill.ErrSeriesNotFound),
		errors.Is(err, service.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, backfill.ErrNotRecurring):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// parseTime accepts RFC 3339 timestamps or plain dates in loc.
func parseTime(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}
