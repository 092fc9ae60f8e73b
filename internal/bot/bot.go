package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/service"
)

const (
	cbDonePrefix = "done:"
	maxListed    = 20
)

// Sender is the part of the Telegram API the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Tasks interface {
	Board(ctx context.Context, f board.Filters, s board.Sort) ([]board.View, error)
	Transition(ctx context.Context, taskID uint, to board.Status) (board.Item, error)
}

type Series interface {
	Backfill(ctx context.Context, seriesID uint) (backfill.Result, error)
}

type Digests interface {
	Digest(ctx context.Context) (string, error)
}

type Subscribers interface {
	Upsert(ctx context.Context, telegramID, chatID int64, firstName, username string) (*model.Subscriber, error)
	SetDigest(ctx context.Context, telegramID int64, enabled bool) error
	ListDigest(ctx context.Context) ([]model.Subscriber, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api         Sender
	client      *tgbotapi.BotAPI
	tasks       Tasks
	series      Series
	digests     Digests
	subscribers Subscribers
	clock       clock.Clock
	loc         *time.Location
}

func New(token string, tasks Tasks, series Series, digests Digests, subscribers Subscribers, clk clock.Clock, loc *time.Location) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.WithField("account", api.Self.UserName).Info("bot authorized")

	b := NewWithSender(api, tasks, series, digests, subscribers, clk, loc)
	b.client = api
	return b, nil
}

// NewWithSender builds a bot that only sends; Start is unavailable.
func NewWithSender(api Sender, tasks Tasks, series Series, digests Digests, subscribers Subscribers, clk clock.Clock, loc *time.Location) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		api:         api,
		tasks:       tasks,
		series:      series,
		digests:     digests,
		subscribers: subscribers,
		clock:       clk,
		loc:         loc,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return errors.New("bot has no telegram client")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.client.GetUpdatesChan(updateConfig)

	log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.client.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}
	return ctx.Err()
}

// HandleUpdate dispatches one update. Errors are logged, never returned, so
// one bad message cannot stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.WithError(err).Warn("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.WithError(err).Warn("handle message")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}

	log.WithFields(log.Fields{"from": msg.From.ID, "command": msg.Command()}).Debug("command received")
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "board":
		return b.sendBoard(ctx, msg.Chat.ID, board.Filters{}, "📋 <b>Open tasks</b>")
	case "overdue":
		return b.sendBoard(ctx, msg.Chat.ID, board.Filters{Urgency: board.UrgencyOverdue}, "⚠️ <b>Overdue</b>")
	case "done":
		return b.handleDone(ctx, msg)
	case "backfill":
		return b.handleBackfill(ctx, msg)
	case "preview":
		return b.handlePreview(msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "mute":
		return b.setDigest(ctx, msg, false)
	case "unmute":
		return b.setDigest(ctx, msg, true)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /board: open tasks, soonest due first\n" +
	"• /overdue: only overdue tasks\n" +
	"• /done &lt;id&gt;: mark a task completed\n" +
	"• /backfill &lt;series id&gt;: generate missing occurrences now\n" +
	"• /preview &lt;pattern&gt; [interval] [days]: next dates of a rule, e.g. /preview weekly 2 1,5\n" +
	"• /digest: send the daily digest now\n" +
	"• /mute, /unmute: stop or resume the daily digest"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.subscribers.Upsert(ctx, msg.From.ID, msg.Chat.ID, msg.From.FirstName, msg.From.UserName); err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>You will get the board digest every morning.</b>\n\n%s", html.EscapeString(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) sendBoard(ctx context.Context, chatID int64, f board.Filters, header string) error {
	views, err := b.tasks.Board(ctx, f, board.Sort{Field: board.SortDueDate})
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load the board: %s", html.EscapeString(err.Error())))
	}
	if len(views) == 0 {
		return b.sendText(chatID, "Nothing here. 🎉")
	}

	now := b.clock.Now().In(b.loc)
	var builder strings.Builder
	builder.WriteString(header + "\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, v := range views {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("… and %d more\n", len(views)-maxListed))
			break
		}
		builder.WriteString(service.FormatView(v, now))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d · %s", v.ID, shortTitle(v.Title, 24)),
				fmt.Sprintf("%s%d", cbDonePrefix, v.ID),
			),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /done 12")
	}
	return b.complete(ctx, msg.Chat.ID, id)
}

func (b *Bot) complete(ctx context.Context, chatID int64, id uint) error {
	item, err := b.tasks.Transition(ctx, id, board.StatusCompleted)
	if err != nil {
		if errors.Is(err, board.ErrItemNotFound) {
			return b.sendText(chatID, "Task not found.")
		}
		return b.sendText(chatID, fmt.Sprintf("Error: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("✅ «%s» completed.", html.EscapeString(item.Title)))
}

func (b *Bot) handleBackfill(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the series id: /backfill 3")
	}

	res, err := b.series.Backfill(ctx, id)
	switch {
	case errors.Is(err, backfill.ErrSeriesNotFound):
		return b.sendText(msg.Chat.ID, "Series not found.")
	case errors.Is(err, backfill.ErrNotRecurring):
		return b.sendText(msg.Chat.ID, "That series is not recurring.")
	case err != nil:
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Error: %s", html.EscapeString(err.Error())))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("♻️ Series #%d: %d created", id, len(res.Created)))
	if res.Partial() {
		sb.WriteString(fmt.Sprintf(", %d failed", len(res.Failed)))
		for _, f := range res.Failed {
			sb.WriteString(fmt.Sprintf("\n   ✖️ %s: %s", f.Date.In(b.loc).Format("2006-01-02"), html.EscapeString(f.Reason)))
		}
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handlePreview(msg *tgbotapi.Message) error {
	spec, err := parseRuleArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s\nExample: /preview weekly 2 1,5", html.EscapeString(err.Error())))
	}
	preview, err := service.Preview(spec, b.clock.Now().In(b.loc), 5)
	if err != nil {
		return b.sendText(msg.Chat.ID, html.EscapeString(err.Error()))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🗓 <b>%s</b>\n", html.EscapeString(preview.Summary)))
	for _, d := range preview.Dates {
		sb.WriteString("• " + d.Format("Mon 2006-01-02") + "\n")
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.digests.Digest(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the digest: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) setDigest(ctx context.Context, msg *tgbotapi.Message, enabled bool) error {
	if _, err := b.subscribers.Upsert(ctx, msg.From.ID, msg.Chat.ID, msg.From.FirstName, msg.From.UserName); err != nil {
		return err
	}
	if err := b.subscribers.SetDigest(ctx, msg.From.ID, enabled); err != nil {
		return err
	}
	if enabled {
		return b.sendText(msg.Chat.ID, "🔔 Daily digest resumed.")
	}
	return b.sendText(msg.Chat.ID, "🔕 Daily digest muted.")
}

// SendDigests sends the digest to every subscriber that has not muted it.
func (b *Bot) SendDigests(ctx context.Context) error {
	subs, err := b.subscribers.ListDigest(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	text, err := b.digests.Digest(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(sub.ChatID, text); err != nil {
			log.WithError(err).WithField("chat", sub.ChatID).Warn("send digest")
		}
	}
	log.WithField("subscribers", len(subs)).Info("digest sent")
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.WithError(err).Debug("callback ack")
	}
	if !strings.HasPrefix(cb.Data, cbDonePrefix) {
		return nil
	}
	id, err := parseID(strings.TrimPrefix(cb.Data, cbDonePrefix))
	if err != nil {
		return nil
	}
	return b.complete(ctx, cb.Message.Chat.ID, id)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(value), nil
}

// parseRuleArgs reads "<pattern> [interval] [days]". Days are weekday numbers
// (0 = Sunday) for weekly rules or a day of month for monthly ones.
func parseRuleArgs(raw string) (recurrence.RuleSpec, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return recurrence.RuleSpec{}, errors.New("give a pattern: daily, weekly, monthly or yearly")
	}
	spec := recurrence.RuleSpec{Pattern: recurrence.Pattern(strings.ToLower(fields[0]))}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return spec, fmt.Errorf("interval %q is not a number", fields[1])
		}
		spec.Interval = n
	}
	if len(fields) > 2 {
		switch spec.Pattern {
		case recurrence.Monthly:
			day, err := strconv.Atoi(fields[2])
			if err != nil {
				return spec, fmt.Errorf("day of month %q is not a number", fields[2])
			}
			spec.DayOfMonth = &day
		default:
			days, err := recurrence.ParseWeekdays(fields[2])
			if err != nil {
				return spec, err
			}
			spec.DaysOfWeek = days
		}
	}
	return spec, nil
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
