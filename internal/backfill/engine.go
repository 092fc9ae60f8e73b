package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/recurrence"
)

const skippedReason = "skipped after an earlier failure in this run"

// Engine reconciles the occurrences a series should have with the ones the
// store already holds. Runs are idempotent and safe to repeat concurrently as
// long as the store rejects duplicate (series, anchor) pairs.
type Engine struct {
	store Store
	clock clock.Clock
	loc   *time.Location
}

func NewEngine(store Store, clk clock.Clock, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, clock: clk, loc: loc}
}

// Backfill creates every missing occurrence of the series up to now.
func (e *Engine) Backfill(ctx context.Context, seriesID uint) (Result, error) {
	series, err := e.store.FindSeries(ctx, seriesID)
	if err != nil {
		return Result{SeriesID: seriesID}, fmt.Errorf("load series %d: %w", seriesID, err)
	}
	if !series.IsRecurring {
		return Result{SeriesID: seriesID}, fmt.Errorf("series %d: %w", seriesID, ErrNotRecurring)
	}
	return e.run(ctx, series)
}

// AfterCompletion is the board's completion hook. Only series scheduled from
// the completion date react to it.
func (e *Engine) AfterCompletion(ctx context.Context, seriesID uint) (Result, error) {
	series, err := e.store.FindSeries(ctx, seriesID)
	if err != nil {
		return Result{SeriesID: seriesID}, fmt.Errorf("load series %d: %w", seriesID, err)
	}
	if !series.IsRecurring || !completionDriven(series) {
		return Result{SeriesID: seriesID}, nil
	}
	return e.run(ctx, series)
}

func (e *Engine) run(ctx context.Context, series *Series) (Result, error) {
	logger := log.WithFields(log.Fields{"series": series.ID, "run": uuid.NewString()})

	var (
		res Result
		err error
	)
	if series.Rule.Pattern() == recurrence.Yearly {
		series.Rule = series.Rule.PinnedTo(series.Start.In(e.loc).Day())
	}
	if completionDriven(series) {
		res, err = e.fromCompletion(ctx, series, logger)
	} else {
		res, err = e.fromDueDate(ctx, series, logger)
	}
	if err != nil {
		return res, err
	}

	if len(res.Created) > 0 || res.Partial() {
		logger.WithFields(log.Fields{"created": len(res.Created), "failed": len(res.Failed)}).Info("backfill finished")
	}
	return res, nil
}

func (e *Engine) fromDueDate(ctx context.Context, series *Series, logger *log.Entry) (Result, error) {
	anchor := series.Start
	if series.LastGeneratedAnchor != nil {
		anchor = *series.LastGeneratedAnchor
	}
	now := e.clock.Now().In(e.loc)
	dates := recurrence.GenerateUpTo(series.Rule, anchor.In(e.loc), now)
	return e.materialize(ctx, series, dates, logger), nil
}

// completionDriven reports whether the series schedules from completions.
// Events are never completed, so they always follow their due dates.
func completionDriven(series *Series) bool {
	return series.Kind != KindEvent && series.Rule.ScheduleFrom() == recurrence.FromCompletionDate
}

// fromCompletion schedules one occurrence from the most recently completed
// one. Nothing is generated while an occurrence already follows it; older
// reopened occurrences do not count.
func (e *Engine) fromCompletion(ctx context.Context, series *Series, logger *log.Entry) (Result, error) {
	occs, err := e.store.FindOccurrences(ctx, series.ID)
	if err != nil {
		return Result{SeriesID: series.ID}, fmt.Errorf("%w: list occurrences of series %d: %w", ErrPersistenceUnavailable, series.ID, err)
	}

	var last *Occurrence
	for i := range occs {
		o := &occs[i]
		if !o.Completed || o.CompletedAt == nil {
			continue
		}
		if last == nil || o.CompletedAt.After(*last.CompletedAt) ||
			(o.CompletedAt.Equal(*last.CompletedAt) && o.Anchor.After(last.Anchor)) {
			last = o
		}
	}
	if last == nil {
		return Result{SeriesID: series.ID}, nil
	}
	for _, o := range occs {
		if o.Anchor.After(last.Anchor) {
			return Result{SeriesID: series.ID}, nil
		}
	}

	next, ok := recurrence.Next(series.Rule, last.CompletedAt.In(e.loc))
	if !ok {
		logger.Debug("rule ended, no occurrence after completion")
		return Result{SeriesID: series.ID}, nil
	}
	next = withClockOf(next, series.Start.In(e.loc))
	return e.materialize(ctx, series, []time.Time{next}, logger), nil
}

// materialize creates dates in order. The first hard failure stops the run;
// the failing date and every later one are reported, and the series anchor
// only moves past dates that now exist.
func (e *Engine) materialize(ctx context.Context, series *Series, dates []time.Time, logger *log.Entry) Result {
	res := Result{SeriesID: series.ID}
	var reached *time.Time

	for i, d := range dates {
		created, err := e.ensure(ctx, series, d)
		if err != nil {
			logger.WithError(err).WithField("date", d).Warn("backfill stopped")
			res.Failed = append(res.Failed, DateFailure{Date: d, Reason: err.Error()})
			for _, rest := range dates[i+1:] {
				res.Failed = append(res.Failed, DateFailure{Date: rest, Reason: skippedReason})
			}
			break
		}
		if created {
			res.Created = append(res.Created, d)
		}
		reached = &dates[i]
	}

	if reached != nil {
		if err := e.store.UpdateSeries(ctx, series.ID, *reached); err != nil {
			// The next run re-checks existence, so nothing is duplicated.
			logger.WithError(err).Warn("failed to advance series anchor")
		}
	}
	return res
}

func (e *Engine) ensure(ctx context.Context, series *Series, anchor time.Time) (bool, error) {
	exists, err := e.store.ExistsForAnchor(ctx, series.ID, anchor)
	if err != nil {
		return false, fmt.Errorf("%w: check anchor: %w", ErrPersistenceUnavailable, err)
	}
	if exists {
		return false, nil
	}

	_, err = e.store.CreateOccurrence(ctx, newTemplate(series, anchor))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrDuplicateOccurrence):
		return false, nil
	default:
		return false, fmt.Errorf("%w: create occurrence: %w", ErrPersistenceUnavailable, err)
	}
}

func newTemplate(series *Series, anchor time.Time) Template {
	tpl := Template{
		SeriesID:    series.ID,
		Kind:        series.Kind,
		Anchor:      anchor,
		Due:         anchor,
		Title:       series.Title,
		Description: series.Description,
		Assignee:    series.Assignee,
		Attendees:   series.Attendees,
		Priority:    series.Priority,
		SpaceID:     series.SpaceID,
	}
	if series.Kind == KindEvent {
		tpl.End = anchor.Add(series.Duration)
	}
	return tpl
}

func withClockOf(day, clockSource time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, clockSource.Hour(), clockSource.Minute(), clockSource.Second(), 0, day.Location())
}
