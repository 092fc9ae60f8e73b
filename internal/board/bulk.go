package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var errTimedOut = errors.New("timed out")

type MutationKind string

const (
	MutationSetStatus   MutationKind = "set_status"
	MutationSetPriority MutationKind = "set_priority"
	MutationDelete      MutationKind = "delete"
)

// Mutation is one change applied to every id of a bulk request.
type Mutation struct {
	Kind     MutationKind `json:"kind"`
	Status   Status       `json:"status,omitempty"`
	Priority Priority     `json:"priority,omitempty"`
}

func SetStatus(s Status) Mutation     { return Mutation{Kind: MutationSetStatus, Status: s} }
func SetPriority(p Priority) Mutation { return Mutation{Kind: MutationSetPriority, Priority: p} }
func Delete() Mutation                { return Mutation{Kind: MutationDelete} }

func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationSetStatus:
		if m.Status.rank() < 0 {
			return fmt.Errorf("unknown status %q", m.Status)
		}
	case MutationSetPriority:
		if m.Priority.rank() < 0 {
			return fmt.Errorf("unknown priority %q", m.Priority)
		}
	case MutationDelete:
	default:
		return fmt.Errorf("unknown mutation %q", m.Kind)
	}
	return nil
}

// MutationFailure is the per-id failure collected by BulkApply.
type MutationFailure struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

func (f MutationFailure) Error() string {
	return fmt.Sprintf("item %d: %s", f.ID, f.Reason)
}

type BulkResult struct {
	Succeeded []uint            `json:"succeeded"`
	Failed    []MutationFailure `json:"failed"`
}

// BulkApply runs m for every id concurrently and waits for all of them.
// Results keep the order of ids; duplicates are applied once.
func (b *Board) BulkApply(ctx context.Context, ids []uint, m Mutation) BulkResult {
	ids = dedupe(ids)
	res := BulkResult{Succeeded: []uint{}, Failed: []MutationFailure{}}

	if err := m.Validate(); err != nil {
		for _, id := range ids {
			res.Failed = append(res.Failed, MutationFailure{ID: id, Reason: err.Error()})
		}
		return res
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = b.applyOne(ctx, id, m)
		}()
	}
	wg.Wait()

	for i, id := range ids {
		if errs[i] != nil {
			res.Failed = append(res.Failed, MutationFailure{ID: id, Reason: errs[i].Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	log.WithFields(log.Fields{
		"batch":     uuid.NewString(),
		"mutation":  m.Kind,
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
	}).Info("bulk mutation applied")
	return res
}

func (b *Board) applyOne(ctx context.Context, id uint, m Mutation) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- b.mutate(ctx, id, m) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errTimedOut
	}
	return err
}

func (b *Board) mutate(ctx context.Context, id uint, m Mutation) error {
	switch m.Kind {
	case MutationSetStatus:
		_, err := b.Transition(ctx, id, m.Status)
		return err
	case MutationSetPriority:
		p := m.Priority
		_, err := b.store.MutateItem(ctx, id, Patch{Priority: &p})
		return err
	default:
		return b.store.DeleteItem(ctx, id)
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Selection is the board-local set of selected item ids.
type Selection struct {
	mu  sync.Mutex
	ids map[uint]struct{}
}

func NewSelection(ids ...uint) *Selection {
	s := &Selection{ids: make(map[uint]struct{})}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *Selection) Select(id uint) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Selection) Deselect(id uint) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Toggle flips id and reports whether it is now selected.
func (s *Selection) Toggle(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *Selection) Contains(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[uint]struct{})
	s.mu.Unlock()
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the selection in ascending order.
func (s *Selection) IDs() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Apply runs m over the selection. A fully successful batch clears it;
// otherwise only the failed ids stay selected for a retry.
func (s *Selection) Apply(ctx context.Context, b *Board, m Mutation) BulkResult {
	res := b.BulkApply(ctx, s.IDs(), m)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(res.Failed) == 0 {
		s.ids = make(map[uint]struct{})
		return res
	}
	for _, id := range res.Succeeded {
		delete(s.ids, id)
	}
	return res
}
