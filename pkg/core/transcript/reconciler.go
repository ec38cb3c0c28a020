// Package transcript reconciles streaming partial-text events into stable,
// incrementally-updated conversation turns.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a turn.
type Role int

const (
	// RoleUser is the student speaking into the microphone.
	RoleUser Role = iota
	// RoleTutor is the synthesized tutor voice.
	RoleTutor
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleTutor:
		return "tutor"
	default:
		return "unknown"
	}
}

func (r Role) other() Role {
	if r == RoleUser {
		return RoleTutor
	}
	return RoleUser
}

// Entry is one visible transcript item. Its identity is stable across partial
// updates: fragments for an open turn replace the entry text in place rather
// than appending new entries.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a completed turn ready for persistence.
type Message struct {
	Role Role
	Text string
}

type openTurn struct {
	id   string
	text strings.Builder
}

// Reconciler accumulates partial-text fragments into at most one open turn
// per role. Opening a turn for one role implicitly closes the other role's
// open turn (barge-in): the closed turn keeps its visible entry and its text,
// stops accumulating, and is persisted at the next turn-complete commit.
type Reconciler struct {
	mu      sync.Mutex
	entries []Entry
	index   map[string]int

	// open is the accumulating turn per role; closed holds a role's most
	// recent turn after a barge-in ended it, final but not yet committed.
	open          [2]*openTurn
	closed        [2]*openTurn
	lastAbandoned string

	now   func() time.Time
	newID func() string
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		index: make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// AddFragment applies one partial-text event for the given role, in arrival
// order. It opens a turn for the role if none is open, closing the other
// role's open turn first, and upserts the visible entry for the open turn.
func (r *Reconciler) AddFragment(role Role, text string) {
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	turn := r.open[role]
	if turn == nil {
		// Barge-in: the other side's accumulation ends here but its text is
		// kept for the next commit. A new turn by this role supersedes its
		// own uncommitted one.
		if prev := r.open[role.other()]; prev != nil {
			r.closed[role.other()] = prev
			r.open[role.other()] = nil
		}
		r.closed[role] = nil

		turn = &openTurn{id: r.newID()}
		r.open[role] = turn
		r.entries = append(r.entries, Entry{
			ID:        turn.id,
			Role:      role,
			CreatedAt: r.now(),
		})
		r.index[turn.id] = len(r.entries) - 1
	}

	turn.text.WriteString(text)
	r.entries[r.index[turn.id]].Text = turn.text.String()
}

// CommitTurn finalizes the current turn pair. It returns one Message per role
// whose accumulated text is non-empty (user first), taking the role's open
// turn or, when a barge-in already closed it, the held closed turn. All turn
// state is fully reset regardless of whether text was present.
func (r *Reconciler) CommitTurn() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, role := range []Role{RoleUser, RoleTutor} {
		turn := r.open[role]
		if turn == nil {
			turn = r.closed[role]
		}
		if turn != nil {
			if text := turn.text.String(); strings.TrimSpace(text) != "" {
				out = append(out, Message{Role: role, Text: text})
			}
		}
		r.open[role] = nil
		r.closed[role] = nil
	}
	return out
}

// AbandonTutorTurn discards the tutor accumulation after an interruption,
// both the in-progress turn and any held closed one. The visible entries keep
// whatever was heard, but none of it will be persisted.
func (r *Reconciler) AbandonTutorTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	turn := r.open[RoleTutor]
	if turn == nil {
		turn = r.closed[RoleTutor]
	}
	if turn == nil {
		return
	}
	r.lastAbandoned = turn.text.String()
	r.open[RoleTutor] = nil
	r.closed[RoleTutor] = nil
}

// LastAbandoned returns the text of the most recently abandoned tutor turn.
func (r *Reconciler) LastAbandoned() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAbandoned
}

// Entries returns a snapshot of the visible transcript in arrival order.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// OpenTurns reports which roles currently have an open turn.
func (r *Reconciler) OpenTurns() (user, tutor bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[RoleUser] != nil, r.open[RoleTutor] != nil
}

// Reset clears all reconciliation state and the visible transcript.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.index = make(map[string]int)
	r.open[RoleUser] = nil
	r.open[RoleTutor] = nil
	r.closed[RoleUser] = nil
	r.closed[RoleTutor] = nil
	r.lastAbandoned = ""
}
