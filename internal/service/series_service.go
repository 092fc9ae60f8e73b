package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/repository"
)

// SeriesInput represents data required to start a recurring series.
type SeriesInput struct {
	Kind            backfill.Kind
	Title           string
	Description     string
	Space           string
	Priority        string
	Assignee        string
	Attendees       string
	StartsAt        time.Time
	DurationMinutes int
	Rule            recurrence.RuleSpec
}

// SeriesService manages recurring templates and drives the backfill engine.
type SeriesService struct {
	seriesRepo *repository.SeriesRepository
	taskRepo   *repository.TaskRepository
	eventRepo  *repository.EventRepository
	spaces     *SpaceService
	store      *repository.OccurrenceStore
	engine     *backfill.Engine
}

func NewSeriesService(
	seriesRepo *repository.SeriesRepository,
	taskRepo *repository.TaskRepository,
	eventRepo *repository.EventRepository,
	spaces *SpaceService,
	engine *backfill.Engine,
) *SeriesService {
	return &SeriesService{
		seriesRepo: seriesRepo,
		taskRepo:   taskRepo,
		eventRepo:  eventRepo,
		spaces:     spaces,
		store:      repository.NewOccurrenceStore(seriesRepo, taskRepo, eventRepo),
		engine:     engine,
	}
}

// Create stores the series, materializes its first occurrence at StartsAt and
// catches up on any occurrences already due.
func (s *SeriesService) Create(ctx context.Context, input SeriesInput) (*model.Series, backfill.Result, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, backfill.Result{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.StartsAt.IsZero() {
		return nil, backfill.Result{}, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	kind := input.Kind
	if kind == "" {
		kind = backfill.KindTask
	}
	if kind != backfill.KindTask && kind != backfill.KindEvent {
		return nil, backfill.Result{}, fmt.Errorf("%w: unknown series kind %q", ErrInvalidInput, kind)
	}
	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return nil, backfill.Result{}, err
	}

	rule, err := recurrence.NewRule(pinDayOfMonth(input.Rule, input.StartsAt))
	if err != nil {
		return nil, backfill.Result{}, err
	}

	spaceID, err := s.spaces.Resolve(ctx, input.Space)
	if err != nil {
		return nil, backfill.Result{}, err
	}

	series := model.Series{
		Kind:            string(kind),
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Assignee:        input.Assignee,
		Attendees:       input.Attendees,
		Priority:        string(priority),
		SpaceID:         spaceID,
		IsRecurring:     true,
		StartsAt:        input.StartsAt.UTC(),
		DurationMinutes: input.DurationMinutes,
	}
	repository.ApplyRule(&series, rule)
	if err := s.seriesRepo.Create(ctx, &series); err != nil {
		return nil, backfill.Result{}, err
	}

	first := backfill.Template{
		SeriesID:    series.ID,
		Kind:        kind,
		Anchor:      input.StartsAt,
		Due:         input.StartsAt,
		End:         input.StartsAt.Add(time.Duration(input.DurationMinutes) * time.Minute),
		Title:       series.Title,
		Description: series.Description,
		Assignee:    series.Assignee,
		Attendees:   series.Attendees,
		Priority:    series.Priority,
		SpaceID:     series.SpaceID,
	}
	if _, err := s.store.CreateOccurrence(ctx, first); err != nil && !errors.Is(err, backfill.ErrDuplicateOccurrence) {
		return nil, backfill.Result{}, err
	}
	if err := s.seriesRepo.SetLastGeneratedAnchor(ctx, series.ID, input.StartsAt); err != nil {
		return nil, backfill.Result{}, err
	}

	res, err := s.engine.Backfill(ctx, series.ID)
	if err != nil {
		return nil, res, err
	}

	log.WithFields(log.Fields{
		"series": series.ID,
		"kind":   series.Kind,
		"rule":   recurrence.Describe(rule),
	}).Info("series created")
	return &series, res, nil
}

func (s *SeriesService) Get(ctx context.Context, seriesID uint) (*model.Series, error) {
	series, err := s.seriesRepo.FindByID(ctx, seriesID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("series %d: %w", seriesID, backfill.ErrSeriesNotFound)
	}
	return series, err
}

// UpdateRule replaces the rule for future generation. Occurrences that
// already exist are kept as they are.
func (s *SeriesService) UpdateRule(ctx context.Context, seriesID uint, spec recurrence.RuleSpec) (*model.Series, error) {
	series, err := s.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	rule, err := recurrence.NewRule(pinDayOfMonth(spec, series.StartsAt))
	if err != nil {
		return nil, err
	}
	repository.ApplyRule(series, rule)
	if err := s.seriesRepo.Save(ctx, series); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"series": seriesID, "rule": recurrence.Describe(rule)}).Info("series rule updated")
	return series, nil
}

// Delete removes the series. Its occurrences stay on the board as standalone
// items.
func (s *SeriesService) Delete(ctx context.Context, seriesID uint) error {
	if _, err := s.Get(ctx, seriesID); err != nil {
		return err
	}
	if err := s.taskRepo.Orphan(ctx, seriesID); err != nil {
		return err
	}
	if err := s.eventRepo.Orphan(ctx, seriesID); err != nil {
		return err
	}
	if err := s.seriesRepo.Delete(ctx, seriesID); err != nil {
		return err
	}
	log.WithField("series", seriesID).Info("series deleted, occurrences kept")
	return nil
}

func (s *SeriesService) Backfill(ctx context.Context, seriesID uint) (backfill.Result, error) {
	return s.engine.Backfill(ctx, seriesID)
}

// BackfillAll runs the engine for every recurring series. One series failing
// does not stop the others.
func (s *SeriesService) BackfillAll(ctx context.Context) ([]backfill.Result, error) {
	series, err := s.seriesRepo.ListRecurring(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]backfill.Result, 0, len(series))
	var created, partial int
	for _, sr := range series {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		res, err := s.engine.Backfill(ctx, sr.ID)
		if err != nil {
			log.WithError(err).WithField("series", sr.ID).Warn("backfill skipped series")
			continue
		}
		created += len(res.Created)
		if res.Partial() {
			partial++
		}
		results = append(results, res)
	}

	log.WithFields(log.Fields{
		"series":  len(series),
		"created": created,
		"partial": partial,
	}).Info("backfill sweep done")
	return results, nil
}

// OnOccurrenceCompleted is the board's completion hook.
func (s *SeriesService) OnOccurrenceCompleted(ctx context.Context, seriesID uint) error {
	res, err := s.engine.AfterCompletion(ctx, seriesID)
	if err != nil {
		return err
	}
	if res.Partial() {
		return fmt.Errorf("series %d: %s", seriesID, res.Failed[0].Reason)
	}
	return nil
}

// RulePreview is the next few dates of a rule together with its summary.
type RulePreview struct {
	Summary string      `json:"summary"`
	Dates   []time.Time `json:"dates"`
}

// Preview validates spec and lists up to count dates after anchor.
func Preview(spec recurrence.RuleSpec, anchor time.Time, count int) (RulePreview, error) {
	rule, err := recurrence.NewRule(pinDayOfMonth(spec, anchor))
	if err != nil {
		return RulePreview{}, err
	}
	rule = rule.PinnedTo(anchor.Day())
	dates := recurrence.Preview(rule, anchor, count)
	if dates == nil {
		dates = []time.Time{}
	}
	return RulePreview{Summary: recurrence.Describe(rule), Dates: dates}, nil
}

// pinDayOfMonth fixes a monthly rule to the start date's day so that clamped
// months do not shift later occurrences.
func pinDayOfMonth(spec recurrence.RuleSpec, start time.Time) recurrence.RuleSpec {
	if spec.Pattern == recurrence.Monthly && spec.DayOfMonth == nil && !start.IsZero() {
		day := start.Day()
		spec.DayOfMonth = &day
	}
	return spec
}

func normalizePriority(raw string) (board.Priority, error) {
	if strings.TrimSpace(raw) == "" {
		return board.PriorityNormal, nil
	}
	p, err := board.ParsePriority(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p, nil
}
