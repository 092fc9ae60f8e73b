package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/service"
)

// Events is the calendar side of the service layer.
type Events interface {
	CreateEvent(ctx context.Context, input service.EventInput) (*model.Event, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)
	DeleteEvent(ctx context.Context, eventID uint) error
}

const defaultEventWindow = 7 * 24 * time.Hour

type createEventRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Space       string               `json:"space"`
	Attendees   string               `json:"attendees"`
	StartsAt    string               `json:"startsAt"`
	EndsAt      string               `json:"endsAt"`
	Rule        *recurrence.RuleSpec `json:"rule,omitempty"`
}

type eventResponse struct {
	ID          uint      `json:"id"`
	SeriesID    *uint     `json:"seriesId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Attendees   string    `json:"attendees,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
}

type eventSeriesResponse struct {
	SeriesID uint            `json:"seriesId"`
	Summary  string          `json:"summary"`
	Backfill backfill.Result `json:"backfill"`
}

type eventsResponse struct {
	Items []eventResponse `json:"items"`
}

func toEventResponse(e model.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		SeriesID:    e.SeriesID,
		Title:       e.Title,
		Description: e.Description,
		Attendees:   e.Attendees,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
	}
}

// postEvent creates a one-off event, or an event series when a rule is given.
func (h *handlers) postEvent(c echo.Context) error {
	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	startsAt, err := parseTime(req.StartsAt, h.loc)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid start time", Field: "startsAt"})
	}
	endsAt := startsAt
	if req.EndsAt != "" {
		endsAt, err = parseTime(req.EndsAt, h.loc)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid end time", Field: "endsAt"})
		}
	}
	ctx := c.Request().Context()

	if req.Rule == nil {
		event, err := h.events.CreateEvent(ctx, service.EventInput{
			Title:       req.Title,
			Description: req.Description,
			Space:       req.Space,
			Attendees:   req.Attendees,
			StartsAt:    startsAt,
			EndsAt:      endsAt,
		})
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusCreated, toEventResponse(*event))
	}

	if endsAt.Before(startsAt) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "event ends before it starts", Field: "endsAt"})
	}
	series, res, err := h.series.Create(ctx, service.SeriesInput{
		Kind:            backfill.KindEvent,
		Title:           req.Title,
		Description:     req.Description,
		Space:           req.Space,
		Attendees:       req.Attendees,
		StartsAt:        startsAt,
		DurationMinutes: int(endsAt.Sub(startsAt) / time.Minute),
		Rule:            *req.Rule,
	})
	if err != nil {
		return h.fail(c, err)
	}
	summary := ""
	if preview, err := service.Preview(*req.Rule, startsAt, 0); err == nil {
		summary = preview.Summary
	}
	return c.JSON(http.StatusCreated, eventSeriesResponse{SeriesID: series.ID, Summary: summary, Backfill: normalizeResult(res)})
}

// listEvents returns events starting in [from, to). The window defaults to
// the next seven days from now.
func (h *handlers) listEvents(c echo.Context) error {
	from := h.clock.Now().In(h.loc)
	if raw := c.QueryParam("from"); raw != "" {
		var err error
		if from, err = parseTime(raw, h.loc); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid from", Field: "from"})
		}
	}
	to := from.Add(defaultEventWindow)
	if raw := c.QueryParam("to"); raw != "" {
		var err error
		if to, err = parseTime(raw, h.loc); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid to", Field: "to"})
		}
	}

	events, err := h.events.ListBetween(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, err)
	}
	out := eventsResponse{Items: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		out.Items = append(out.Items, toEventResponse(e))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handlers) deleteEvent(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid event id"})
	}
	if err := h.events.DeleteEvent(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
