package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/service"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTasks struct {
	items      []board.Item
	lastFilter board.Filters
	lastSort   board.Sort
	lastInput  service.TaskInput
	bulkIDs    []uint
	createErr  error
}

func (f *fakeTasks) Board(_ context.Context, fl board.Filters, s board.Sort) ([]board.View, error) {
	f.lastFilter, f.lastSort = fl, s
	return board.Apply(f.items, fl, s, now), nil
}

func (f *fakeTasks) CreateTask(_ context.Context, in service.TaskInput) (*model.Task, error) {
	f.lastInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.Task{ID: 10, Title: in.Title, Status: "todo", Priority: "normal", DueDate: in.DueDate}, nil
}

func (f *fakeTasks) Transition(_ context.Context, id uint, to board.Status) (board.Item, error) {
	for _, it := range f.items {
		if it.ID == id {
			it.Status = to
			return it, nil
		}
	}
	return board.Item{}, fmt.Errorf("task %d: %w", id, board.ErrItemNotFound)
}

func (f *fakeTasks) Bulk(_ context.Context, ids []uint, m board.Mutation) board.BulkResult {
	f.bulkIDs = ids
	res := board.BulkResult{Succeeded: []uint{}, Failed: []board.MutationFailure{}}
	for _, id := range ids {
		if id%2 == 0 {
			res.Failed = append(res.Failed, board.MutationFailure{ID: id, Reason: "locked"})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func (f *fakeTasks) DeleteTask(_ context.Context, id uint) error {
	if id == 404 {
		return board.ErrItemNotFound
	}
	return nil
}

type fakeSeries struct {
	deleted []uint
	created []service.SeriesInput
}

func (f *fakeSeries) Create(_ context.Context, input service.SeriesInput) (*model.Series, backfill.Result, error) {
	if _, err := recurrence.NewRule(input.Rule); err != nil {
		return nil, backfill.Result{}, err
	}
	f.created = append(f.created, input)
	return &model.Series{ID: 7, Kind: string(input.Kind)}, backfill.Result{SeriesID: 7}, nil
}

func (f *fakeSeries) Backfill(_ context.Context, id uint) (backfill.Result, error) {
	switch id {
	case 1:
		return backfill.Result{
			SeriesID: 1,
			Created:  []time.Time{now},
			Failed:   []backfill.DateFailure{{Date: now.AddDate(0, 0, 7), Reason: "persistence unavailable"}},
		}, nil
	case 2:
		return backfill.Result{SeriesID: 2}, fmt.Errorf("series 2: %w", backfill.ErrNotRecurring)
	default:
		return backfill.Result{SeriesID: id}, fmt.Errorf("load series %d: %w", id, backfill.ErrSeriesNotFound)
	}
}

func (f *fakeSeries) UpdateRule(_ context.Context, id uint, spec recurrence.RuleSpec) (*model.Series, error) {
	rule, err := recurrence.NewRule(spec)
	if err != nil {
		return nil, err
	}
	s := &model.Series{ID: id}
	s.Pattern = string(rule.Pattern())
	s.Interval = rule.Interval()
	s.ScheduleFrom = string(rule.ScheduleFrom())
	return s, nil
}

func (f *fakeSeries) Delete(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeEvents struct {
	events   []model.Event
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeEvents) CreateEvent(_ context.Context, input service.EventInput) (*model.Event, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", service.ErrInvalidInput)
	}
	ev := model.Event{ID: uint(len(f.events) + 1), Title: input.Title, StartsAt: input.StartsAt, EndsAt: input.EndsAt}
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeEvents) ListBetween(_ context.Context, from, to time.Time) ([]model.Event, error) {
	f.lastFrom, f.lastTo = from, to
	return f.events, nil
}

func (f *fakeEvents) DeleteEvent(_ context.Context, id uint) error {
	if id > uint(len(f.events)) {
		return fmt.Errorf("event %d: %w", id, service.ErrEventNotFound)
	}
	return nil
}

func newTestServer(tasks *fakeTasks, series *fakeSeries) *echo.Echo {
	return newServerWithEvents(tasks, series, &fakeEvents{})
}

func newServerWithEvents(tasks *fakeTasks, series *fakeSeries, events *fakeEvents) *echo.Echo {
	e := NewServer()
	Register(e, tasks, series, events, clock.NewFixed(now), time.UTC)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetBoard_FiltersAndSort(t *testing.T) {
	due := now.Add(-time.Hour)
	space := uint(3)
	tasks := &fakeTasks{items: []board.Item{
		{ID: 1, Title: "Overdue", Status: board.StatusTodo, Priority: board.PriorityLow, DueDate: &due, SpaceID: &space},
		{ID: 2, Title: "Later", Status: board.StatusTodo, Priority: board.PriorityUrgent, SpaceID: &space},
		{ID: 3, Title: "Done", Status: board.StatusCompleted, Priority: board.PriorityHigh},
	}}
	e := newTestServer(tasks, &fakeSeries{})

	rec := do(e, http.MethodGet, "/api/board?spaceId=3&sort=priority", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(3), *tasks.lastFilter.SpaceID)
	assert.Equal(t, board.SortPriority, tasks.lastSort.Field)

	var resp boardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, uint(2), resp.Items[0].ID)
	assert.Equal(t, board.UrgencyOverdue, resp.Items[1].Urgency)

	rec = do(e, http.MethodGet, "/api/board?showCompleted=true&desc=true&sort=title", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 3)
	assert.Equal(t, "Overdue", resp.Items[0].Title)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/board?sort=color", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/board?spaceId=abc", "").Code)
}

func TestPostTask(t *testing.T) {
	tasks := &fakeTasks{}
	e := newTestServer(tasks, &fakeSeries{})

	rec := do(e, http.MethodPost, "/api/tasks", `{"title":"Payroll","dueDate":"2024-03-04","rule":{"pattern":"weekly","daysOfWeek":[1]}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, tasks.lastInput.DueDate)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), *tasks.lastInput.DueDate)
	require.NotNil(t, tasks.lastInput.Rule)
	assert.Equal(t, []int{1}, tasks.lastInput.Rule.DaysOfWeek)

	var item board.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, uint(10), item.ID)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/tasks", `{"title":"x","dueDate":"tomorrow"}`).Code)

	tasks.createErr = &recurrence.InvalidRuleError{Field: "interval", Reason: "must be positive"}
	rec = do(e, http.MethodPost, "/api/tasks", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"interval"`)

	tasks.createErr = fmt.Errorf("%w: title is required", service.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/tasks", `{}`).Code)

	tasks.createErr = errors.New("disk full")
	rec = do(e, http.MethodPost, "/api/tasks", `{"title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestPostStatus(t *testing.T) {
	tasks := &fakeTasks{items: []board.Item{{ID: 1, Status: board.StatusTodo}}}
	e := newTestServer(tasks, &fakeSeries{})

	rec := do(e, http.MethodPost, "/api/tasks/1/status", `{"status":"review"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"review"`)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/tasks/1/status", `{"status":"blocked"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/api/tasks/9/status", `{"status":"todo"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/tasks/zero/status", `{"status":"todo"}`).Code)
}

func TestPostBulk_ReportsPartialFailure(t *testing.T) {
	tasks := &fakeTasks{}
	e := newTestServer(tasks, &fakeSeries{})

	rec := do(e, http.MethodPost, "/api/board/bulk", `{"ids":[1,2,3],"mutation":{"kind":"set_priority","priority":"high"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res board.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []uint{1, 3}, res.Succeeded)
	assert.Equal(t, []board.MutationFailure{{ID: 2, Reason: "locked"}}, res.Failed)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/board/bulk", `{"ids":[],"mutation":{"kind":"delete"}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/board/bulk", `{"ids":[1],"mutation":{"kind":"archive"}}`).Code)
}

func TestRules_ValidateAndPreview(t *testing.T) {
	e := newTestServer(&fakeTasks{}, &fakeSeries{})

	rec := do(e, http.MethodPost, "/api/rules/validate", `{"rule":{"pattern":"weekly","interval":2,"daysOfWeek":[5,1]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var v validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Valid)
	assert.Equal(t, "every 2 weeks on Mon, Fri", v.Summary)

	rec = do(e, http.MethodPost, "/api/rules/validate", `{"rule":{"pattern":"monthly","dayOfMonth":32}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.False(t, v.Valid)
	assert.Equal(t, "dayOfMonth", v.Field)

	rec = do(e, http.MethodPost, "/api/rules/preview", `{"rule":{"pattern":"daily"},"anchor":"2024-03-01T09:00:00Z","count":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var p service.RulePreview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.Dates, 2)
	assert.True(t, p.Dates[1].Equal(time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)))

	rec = do(e, http.MethodPost, "/api/rules/preview", `{"rule":{"pattern":"weekly"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Len(t, p.Dates, defaultPreviewCount)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/rules/preview", `{"rule":{"pattern":"hourly"}}`).Code)
}

func TestSeriesEndpoints(t *testing.T) {
	series := &fakeSeries{}
	e := newTestServer(&fakeTasks{}, series)

	rec := do(e, http.MethodPost, "/api/series/1/backfill", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res backfill.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Created, 1)
	assert.Len(t, res.Failed, 1)

	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/api/series/2/backfill", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/api/series/3/backfill", "").Code)

	rec = do(e, http.MethodPut, "/api/series/5/rule", `{"rule":{"pattern":"yearly"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pattern":"yearly"`)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPut, "/api/series/5/rule", `{"rule":{"pattern":"daily","interval":-1}}`).Code)

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/series/5", "").Code)
	assert.Equal(t, []uint{5}, series.deleted)

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/tasks/7", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/tasks/404", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "").Code)
}

func TestEvents_CreateListDelete(t *testing.T) {
	events := &fakeEvents{}
	series := &fakeSeries{}
	e := newServerWithEvents(&fakeTasks{}, series, events)

	rec := do(e, http.MethodPost, "/api/events", `{"title":"All hands","startsAt":"2024-03-04T10:00:00Z","endsAt":"2024-03-04T11:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, uint(1), created.ID)
	assert.Empty(t, series.created)

	rec = do(e, http.MethodPost, "/api/events", `{"title":"Standup","startsAt":"2024-03-04T09:00:00Z","endsAt":"2024-03-04T09:15:00Z","rule":{"pattern":"weekly","interval":1,"daysOfWeek":[1,3,5]}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, series.created, 1)
	assert.Equal(t, backfill.KindEvent, series.created[0].Kind)
	assert.Equal(t, 15, series.created[0].DurationMinutes)
	assert.Contains(t, rec.Body.String(), `"seriesId":7`)
	assert.Contains(t, rec.Body.String(), `"created":[]`)

	rec = do(e, http.MethodPost, "/api/events", `{"title":"Bad","startsAt":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodPost, "/api/events", `{"title":"","startsAt":"2024-03-04"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/events?from=2024-03-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), events.lastFrom)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), events.lastTo)
	assert.Contains(t, rec.Body.String(), "All hands")

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/events/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/events/9", "").Code)
}

func TestEvents_SeriesSummaryUsesStartDay(t *testing.T) {
	series := &fakeSeries{}
	e := newServerWithEvents(&fakeTasks{}, series, &fakeEvents{})

	rec := do(e, http.MethodPost, "/api/events", `{"title":"Month close","startsAt":"2024-01-31T10:00:00Z","endsAt":"2024-01-31T11:00:00Z","rule":{"pattern":"monthly"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body eventSeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "every month on day 31", body.Summary)
}
