package calls

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxfront/voxfront-core/core/live"
)

// TranscriptTurn is one entry in the ordered call transcript. A
// non-final entry is still accumulating streamed deltas and may be
// overwritten in place; a final entry is immutable.
type TranscriptTurn struct {
	ID        string
	Role      live.Role
	Text      string
	Final     bool
	UpdatedAt time.Time
}

type pendingTurn struct {
	text string
	// entryIndex locates this role's mutable entry in the sequence,
	// -1 while no entry exists yet.
	entryIndex int
}

// transcriptReconciler turns transcript-delta and turn-boundary events
// into a stable ordered sequence of user/assistant turns.
//
// Per role it keeps one accumulator that exists only between the first
// delta of a turn and its finalization or discard. Deltas merge in
// place: the role's existing non-final entry is overwritten (same
// identity, updated timestamp), and a role switch always starts a
// fresh entry instead of touching the other role's. Each role
// therefore has at most one mutable entry at any time.
//
// The accumulators have a single writer: the event handler consuming
// TranscriptDelta, TurnComplete and Interrupted events.
type transcriptReconciler struct {
	mu sync.Mutex

	turns   []TranscriptTurn
	pending map[live.Role]*pendingTurn

	onUpdate func(TranscriptTurn)
	now      func() time.Time
}

func newTranscriptReconciler(onUpdate func(TranscriptTurn)) *transcriptReconciler {
	return &transcriptReconciler{
		pending:  map[live.Role]*pendingTurn{},
		onUpdate: onUpdate,
		now:      time.Now,
	}
}

// AddDelta appends streamed text to the role's accumulator and emits
// an update carrying the merged value, final=false.
func (r *transcriptReconciler) AddDelta(role live.Role, text string) {
	if text == "" {
		return
	}

	r.mu.Lock()
	pending := r.pending[role]
	if pending == nil {
		pending = &pendingTurn{entryIndex: -1}
		r.pending[role] = pending
	}
	pending.text += text

	var updated TranscriptTurn
	if pending.entryIndex >= 0 {
		entry := &r.turns[pending.entryIndex]
		entry.Text = pending.text
		entry.UpdatedAt = r.now()
		updated = *entry
	} else {
		updated = TranscriptTurn{
			ID:        uuid.NewString(),
			Role:      role,
			Text:      pending.text,
			UpdatedAt: r.now(),
		}
		pending.entryIndex = len(r.turns)
		r.turns = append(r.turns, updated)
	}
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		onUpdate(updated)
	}
}

// CompleteTurn finalizes every role that accumulated non-blank text
// since the last boundary; a single boundary can finalize both sides.
// Empty accumulators produce no entry. Afterwards the accumulators are
// cleared, so the next delta starts a brand-new entry.
func (r *transcriptReconciler) CompleteTurn() {
	r.mu.Lock()
	var finalized []TranscriptTurn
	for _, role := range []live.Role{live.RoleUser, live.RoleAssistant} {
		pending := r.pending[role]
		if pending == nil {
			continue
		}
		delete(r.pending, role)

		if strings.TrimSpace(pending.text) == "" {
			// Blank turns are retracted rather than finalized.
			if pending.entryIndex >= 0 {
				r.removeEntryLocked(pending.entryIndex)
			}
			continue
		}

		if pending.entryIndex >= 0 {
			entry := &r.turns[pending.entryIndex]
			entry.Final = true
			entry.UpdatedAt = r.now()
			finalized = append(finalized, *entry)
		} else {
			// A very short reply can complete before any partial
			// delta was observed.
			entry := TranscriptTurn{
				ID:        uuid.NewString(),
				Role:      role,
				Text:      pending.text,
				Final:     true,
				UpdatedAt: r.now(),
			}
			r.turns = append(r.turns, entry)
			finalized = append(finalized, entry)
		}
	}
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		for _, entry := range finalized {
			onUpdate(entry)
		}
	}
}

// Interrupt discards the assistant's pending accumulator and retracts
// its non-final entry: interrupted speech was never fully delivered,
// so finalizing it would misrepresent the call. The user side is
// untouched; it is the assistant being interrupted, not the user.
func (r *transcriptReconciler) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.pending[live.RoleAssistant]
	if pending == nil {
		return
	}

	if pending.entryIndex >= 0 {
		r.removeEntryLocked(pending.entryIndex)
	}
	delete(r.pending, live.RoleAssistant)
}

// removeEntryLocked retracts the entry at index and repairs the other
// roles' pending indices.
func (r *transcriptReconciler) removeEntryLocked(index int) {
	r.turns = append(r.turns[:index], r.turns[index+1:]...)
	for _, other := range r.pending {
		if other.entryIndex > index {
			other.entryIndex--
		}
	}
}

// Turns returns a point-in-time copy of the transcript sequence.
func (r *transcriptReconciler) Turns() []TranscriptTurn {
	r.mu.Lock()
	defer r.mu.Unlock()

	turns := make([]TranscriptTurn, len(r.turns))
	copy(turns, r.turns)
	return turns
}
