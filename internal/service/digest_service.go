package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/model"
)

// AgendaSource lists the events of one calendar day.
type AgendaSource interface {
	Agenda(ctx context.Context, day time.Time) ([]model.Event, error)
}

// DigestService builds the human-readable board summary sent every morning.
type DigestService struct {
	items  ItemLister
	agenda AgendaSource
	clock  clock.Clock
	loc    *time.Location
}

func NewDigestService(items ItemLister, agenda AgendaSource, clk clock.Clock, loc *time.Location) *DigestService {
	if loc == nil {
		loc = time.UTC
	}
	return &DigestService{items: items, agenda: agenda, clock: clk, loc: loc}
}

// Digest lists overdue and due-soon tasks, most urgent first, followed by
// today's events.
func (s *DigestService) Digest(ctx context.Context) (string, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return "", err
	}
	now := s.clock.Now().In(s.loc)

	byDue := board.Sort{Field: board.SortDueDate}
	overdue := board.Apply(items, board.Filters{Urgency: board.UrgencyOverdue}, byDue, now)
	dueSoon := board.Apply(items, board.Filters{Urgency: board.UrgencyDueSoon}, byDue, now)

	var events []model.Event
	if s.agenda != nil {
		events, err = s.agenda.Agenda(ctx, now)
		if err != nil {
			return "", err
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Board digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Mon 02 Jan 2006")))

	builder.WriteString("⚠️ <b>Overdue</b>\n")
	writeViews(&builder, overdue, now, "no overdue tasks")

	builder.WriteString("\n⏳ <b>Due in the next 24h</b>\n")
	writeViews(&builder, dueSoon, now, "nothing due soon")

	builder.WriteString("\n📅 <b>Today</b>\n")
	if len(events) == 0 {
		builder.WriteString("— no events\n")
	} else {
		for _, e := range events {
			builder.WriteString(formatEvent(e, s.loc))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func writeViews(b *strings.Builder, views []board.View, now time.Time, empty string) {
	if len(views) == 0 {
		b.WriteString("— " + empty + "\n")
		return
	}
	for _, v := range views {
		b.WriteString(FormatView(v, now))
	}
}

// FormatView renders one board line for Telegram HTML messages.
func FormatView(v board.View, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch v.Urgency {
	case board.UrgencyOverdue:
		icon = "⚠️"
	case board.UrgencyDueSoon:
		icon = "⏳"
	}
	if v.SeriesID != nil {
		icon += "♻️"
	}

	sb.WriteString(fmt.Sprintf("%s <code>#%d</code> %s", icon, v.ID, html.EscapeString(strings.TrimSpace(v.Title))))
	if v.Priority == board.PriorityUrgent || v.Priority == board.PriorityHigh {
		sb.WriteString(fmt.Sprintf(" <i>[%s]</i>", v.Priority))
	}
	if v.Assignee != "" {
		sb.WriteString(fmt.Sprintf(" · %s", html.EscapeString(v.Assignee)))
	}

	if v.DueDate != nil {
		d := v.DueDate.In(now.Location())
		if v.Urgency == board.UrgencyOverdue {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, <b>overdue</b>", d.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", d.Format("2006-01-02 15:04")))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatEvent(e model.Event, loc *time.Location) string {
	line := fmt.Sprintf("• %s–%s %s", e.StartsAt.In(loc).Format("15:04"), e.EndsAt.In(loc).Format("15:04"),
		html.EscapeString(strings.TrimSpace(e.Title)))
	if e.Attendees != "" {
		line += fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(e.Attendees))
	}
	return line + "\n"
}
