package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/repository"
)

type harness struct {
	clock  *clock.Fixed
	tasks  *TaskService
	series *SeriesService
	events *EventService
	digest *DigestService
	repo   *repository.TaskRepository
}

var monday = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clk := clock.NewFixed(now)
	seriesRepo := repository.NewSeriesRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	eventRepo := repository.NewEventRepository(db)
	spaces := NewSpaceService(repository.NewSpaceRepository(db))

	engine := backfill.NewEngine(repository.NewOccurrenceStore(seriesRepo, taskRepo, eventRepo), clk, time.UTC)
	seriesSvc := NewSeriesService(seriesRepo, taskRepo, eventRepo, spaces, engine)
	boardStore := repository.NewBoardStore(taskRepo)
	b := board.New(boardStore, clk, board.WithCompletionHook(seriesSvc.OnOccurrenceCompleted))
	eventSvc := NewEventService(eventRepo, spaces)

	return &harness{
		clock:  clk,
		tasks:  NewTaskService(taskRepo, boardStore, spaces, seriesSvc, b, clk),
		series: seriesSvc,
		events: eventSvc,
		digest: NewDigestService(boardStore, eventSvc, clk, time.UTC),
		repo:   taskRepo,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateTask_Plain(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	task, err := h.tasks.CreateTask(ctx, TaskInput{Title: "  File VAT return ", Space: "Finance", Priority: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, "File VAT return", task.Title)
	assert.Equal(t, "high", task.Priority)
	assert.Equal(t, "todo", task.Status)
	require.NotNil(t, task.SpaceID)

	_, err = h.tasks.CreateTask(ctx, TaskInput{Title: " "})
	assert.Error(t, err)
	_, err = h.tasks.CreateTask(ctx, TaskInput{Title: "x", Priority: "someday"})
	assert.Error(t, err)
}

func TestCreateTask_RecurringCatchesUp(t *testing.T) {
	h := newHarness(t, monday.AddDate(0, 0, 21))
	ctx := context.Background()

	task, err := h.tasks.CreateTask(ctx, TaskInput{
		Title:   "Weekly payroll",
		DueDate: ptr(monday),
		Rule:    &recurrence.RuleSpec{Pattern: recurrence.Weekly},
	})
	require.NoError(t, err)
	require.NotNil(t, task.SeriesID)
	assert.True(t, task.DueDate.Equal(monday))

	all, err := h.repo.ListBySeries(ctx, *task.SeriesID)
	require.NoError(t, err)
	assert.Len(t, all, 4, "start plus three weeks")

	_, err = h.tasks.CreateTask(ctx, TaskInput{Title: "No due", Rule: &recurrence.RuleSpec{Pattern: recurrence.Daily}})
	assert.Error(t, err)

	_, err = h.tasks.CreateTask(ctx, TaskInput{
		Title:   "Bad rule",
		DueDate: ptr(monday),
		Rule:    &recurrence.RuleSpec{Pattern: recurrence.Daily, DaysOfWeek: []int{1}},
	})
	var invalid *recurrence.InvalidRuleError
	assert.ErrorAs(t, err, &invalid)
}

func TestSeries_CompletionModeGeneratesOnDone(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	series, res, err := h.series.Create(ctx, SeriesInput{
		Title:    "Restock supplies",
		StartsAt: monday,
		Rule:     recurrence.RuleSpec{Pattern: recurrence.Daily, Interval: 3, ScheduleFrom: recurrence.FromCompletionDate},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Created)

	tasks, err := h.repo.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	h.clock.Set(monday.AddDate(0, 0, 5).Add(6 * time.Hour))
	_, err = h.tasks.Transition(ctx, tasks[0].ID, board.StatusCompleted)
	require.NoError(t, err)

	tasks, err = h.repo.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	next := tasks[1].DueDate
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC)), "completion day + 3 at the series' time of day, got %s", next)

	// Re-completing an already completed occurrence generates nothing.
	_, err = h.tasks.Transition(ctx, tasks[0].ID, board.StatusCompleted)
	require.NoError(t, err)
	tasks, err = h.repo.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSeries_UpdateRuleKeepsExisting(t *testing.T) {
	h := newHarness(t, monday.AddDate(0, 0, 2))
	ctx := context.Background()

	series, _, err := h.series.Create(ctx, SeriesInput{
		Title:    "Daily check-in",
		StartsAt: monday,
		Rule:     recurrence.RuleSpec{Pattern: recurrence.Daily},
	})
	require.NoError(t, err)
	tasks, err := h.repo.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	updated, err := h.series.UpdateRule(ctx, series.ID, recurrence.RuleSpec{Pattern: recurrence.Weekly})
	require.NoError(t, err)
	assert.Equal(t, "weekly", updated.Pattern)

	h.clock.Set(monday.AddDate(0, 0, 9))
	res, err := h.series.Backfill(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.True(t, res.Created[0].Equal(monday.AddDate(0, 0, 9)))

	tasks, err = h.repo.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 4)

	_, err = h.series.UpdateRule(ctx, series.ID, recurrence.RuleSpec{Pattern: "hourly"})
	assert.Error(t, err)
	_, err = h.series.UpdateRule(ctx, 999, recurrence.RuleSpec{Pattern: recurrence.Daily})
	assert.ErrorIs(t, err, backfill.ErrSeriesNotFound)
}

func TestSeries_DeleteOrphansOccurrences(t *testing.T) {
	h := newHarness(t, monday.AddDate(0, 0, 1))
	ctx := context.Background()

	series, _, err := h.series.Create(ctx, SeriesInput{
		Title:    "Standup",
		StartsAt: monday,
		Rule:     recurrence.RuleSpec{Pattern: recurrence.Daily},
	})
	require.NoError(t, err)

	require.NoError(t, h.series.Delete(ctx, series.ID))
	assert.ErrorIs(t, h.series.Delete(ctx, series.ID), backfill.ErrSeriesNotFound)

	views, err := h.tasks.Board(ctx, board.Filters{Search: "standup"}, board.Sort{Field: board.SortDueDate})
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Nil(t, v.SeriesID)
	}
}

func TestSeries_EventsCarryDuration(t *testing.T) {
	h := newHarness(t, monday.AddDate(0, 0, 14).Add(2*time.Hour))
	ctx := context.Background()

	_, res, err := h.series.Create(ctx, SeriesInput{
		Kind:            backfill.KindEvent,
		Title:           "Ops review",
		Attendees:       "ops@acme.test",
		StartsAt:        monday.Add(time.Hour),
		DurationMinutes: 45,
		Rule:            recurrence.RuleSpec{Pattern: recurrence.Weekly},
	})
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)

	events, err := h.events.ListBetween(ctx, monday, monday.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, 45*time.Minute, e.EndsAt.Sub(e.StartsAt))
	}
}

func TestBackfillAll_RunsEverySeries(t *testing.T) {
	h := newHarness(t, monday.AddDate(0, 0, 3))
	ctx := context.Background()

	for _, title := range []string{"a", "b"} {
		_, _, err := h.series.Create(ctx, SeriesInput{Title: title, StartsAt: monday, Rule: recurrence.RuleSpec{Pattern: recurrence.Daily}})
		require.NoError(t, err)
	}

	h.clock.Set(monday.AddDate(0, 0, 5))
	results, err := h.series.BackfillAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Len(t, r.Created, 2)
	}
}

func TestPreview(t *testing.T) {
	p, err := Preview(recurrence.RuleSpec{Pattern: recurrence.Monthly}, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, "every month on day 31", p.Summary)
	require.Len(t, p.Dates, 3)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.Dates[0])
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), p.Dates[1])
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), p.Dates[2])

	_, err = Preview(recurrence.RuleSpec{Pattern: recurrence.Weekly, DaysOfWeek: []int{9}}, monday, 3)
	assert.Error(t, err)
}

func TestDigest_ListsOverdueAndDueSoon(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	_, err := h.tasks.CreateTask(ctx, TaskInput{Title: "Late invoice", DueDate: ptr(monday.Add(-2 * time.Hour))})
	require.NoError(t, err)
	_, err = h.tasks.CreateTask(ctx, TaskInput{Title: "Call <vendor>", DueDate: ptr(monday.Add(3 * time.Hour)), Priority: "urgent"})
	require.NoError(t, err)
	_, err = h.tasks.CreateTask(ctx, TaskInput{Title: "Next month plan", DueDate: ptr(monday.AddDate(0, 1, 0))})
	require.NoError(t, err)
	_, err = h.events.CreateEvent(ctx, EventInput{Title: "All hands", StartsAt: monday.Add(time.Hour), EndsAt: monday.Add(2 * time.Hour)})
	require.NoError(t, err)

	text, err := h.digest.Digest(ctx)
	require.NoError(t, err)

	overdueAt := strings.Index(text, "Late invoice")
	soonAt := strings.Index(text, "Call &lt;vendor&gt;")
	require.True(t, overdueAt > 0)
	require.True(t, soonAt > overdueAt)
	assert.Contains(t, text, "[urgent]")
	assert.Contains(t, text, "10:00–11:00 All hands")
	assert.NotContains(t, text, "Next month plan")
}

func TestEventService_Validation(t *testing.T) {
	h := newHarness(t, monday)
	ctx := context.Background()

	_, err := h.events.CreateEvent(ctx, EventInput{Title: "x", StartsAt: monday, EndsAt: monday.Add(-time.Minute)})
	assert.Error(t, err)
	ev, err := h.events.CreateEvent(ctx, EventInput{Title: "x", StartsAt: monday})
	require.NoError(t, err)
	assert.True(t, ev.EndsAt.Equal(monday))

	require.NoError(t, h.events.DeleteEvent(ctx, ev.ID))
	assert.ErrorIs(t, h.events.DeleteEvent(ctx, ev.ID), ErrEventNotFound)
	_, err = h.events.ListBetween(ctx, monday, monday)
	assert.Error(t, err)
}

func TestScheduler_DailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:30")
	require.NoError(t, err)
	assert.Equal(t, "0 30 7 * * *", spec)

	for _, bad := range []string{"7", "24:00", "07:60", "aa:bb"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}

	s := NewSchedulerService(time.UTC)
	_, err = s.ScheduleInterval(0, func() {})
	assert.Error(t, err)
	_, err = s.ScheduleInterval(90*time.Second, func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("08:00", func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())
}
