package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"ops-dashboard/internal/clock"
)

var ErrItemNotFound = errors.New("item not found")

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status           *Status
	Priority         *Priority
	CompletedAt      *time.Time
	ClearCompletedAt bool
}

// Store is the mutation side of the persistence collaborator.
type Store interface {
	FindItem(ctx context.Context, id uint) (Item, error)
	MutateItem(ctx context.Context, id uint, patch Patch) (Item, error)
	DeleteItem(ctx context.Context, id uint) error
}

// CompletionHook is called after an occurrence of a series enters completed.
type CompletionHook func(ctx context.Context, seriesID uint) error

// Board applies status transitions and bulk mutations against a Store.
type Board struct {
	store      Store
	clock      clock.Clock
	onComplete CompletionHook
	timeout    time.Duration
}

type Option func(*Board)

func WithCompletionHook(h CompletionHook) Option {
	return func(b *Board) { b.onComplete = h }
}

// WithMutationTimeout bounds each per-item call made by BulkApply.
func WithMutationTimeout(d time.Duration) Option {
	return func(b *Board) { b.timeout = d }
}

func New(store Store, clk clock.Clock, opts ...Option) *Board {
	b := &Board{store: store, clock: clk, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ValidTransition is true for any pair of known statuses: the board does not
// enforce a workflow order.
func ValidTransition(from, to Status) bool {
	return from.rank() >= 0 && to.rank() >= 0
}

// Transition moves an item to another column. Entering completed stamps the
// completion time and fires the completion hook for series occurrences;
// leaving completed only clears the stamp.
func (b *Board) Transition(ctx context.Context, id uint, to Status) (Item, error) {
	current, err := b.store.FindItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !ValidTransition(current.Status, to) {
		return Item{}, fmt.Errorf("item %d: cannot move from %q to %q", id, current.Status, to)
	}

	patch := Patch{Status: &to}
	entering := to == StatusCompleted && current.Status != StatusCompleted
	switch {
	case entering:
		now := b.clock.Now()
		patch.CompletedAt = &now
	case to != StatusCompleted && current.Status == StatusCompleted:
		patch.ClearCompletedAt = true
	}

	updated, err := b.store.MutateItem(ctx, id, patch)
	if err != nil {
		return Item{}, err
	}

	if entering && updated.SeriesID != nil && b.onComplete != nil {
		if err := b.onComplete(ctx, *updated.SeriesID); err != nil {
			// The status change stands; the next scheduled backfill catches up.
			log.WithError(err).WithFields(log.Fields{"item": id, "series": *updated.SeriesID}).Warn("completion hook failed")
		}
	}
	return updated, nil
}
