package battle

import (
	"sort"
	"time"
)

// State represents a battle session lifecycle state.
type State string

const (
	StateWaiting    State = "WAITING"
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
)

// DistanceClass buckets race distances for rating partitioning.
type DistanceClass string

const (
	ClassShort  DistanceClass = "SHORT"  // ~3km
	ClassMedium DistanceClass = "MEDIUM" // ~5km
	ClassLong   DistanceClass = "LONG"   // 10km+
)

// Participant is one runner's live state inside a session.
type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`

	Ready bool `json:"ready"`

	Distance   float64   `json:"distance"` // meters
	DistanceAt time.Time `json:"distance_at,omitempty"`

	Finished   bool      `json:"finished"`
	Quit       bool      `json:"quit"`
	TerminalAt time.Time `json:"terminal_at,omitempty"`

	RunRecordID string `json:"run_record_id,omitempty"`
}

// Terminal reports whether the participant is done with the race either way.
func (p *Participant) Terminal() bool { return p.Finished || p.Quit }

// Session is the persisted state of one multiplayer race.
type Session struct {
	ID            string         `json:"id"`
	DistanceClass DistanceClass  `json:"distance_class"`
	State         State          `json:"state"`
	Participants  []*Participant `json:"participants"`

	// Seq increments on every committed mutation. Broadcast ranking frames
	// carry it so subscribers can discard frames that lost the publish race.
	Seq int64 `json:"seq,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Participant returns the participant entry for userID, or nil.
func (s *Session) Participant(userID string) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// AllReady is true iff every non-quit participant has toggled ready.
func (s *Session) AllReady() bool {
	active := 0
	for _, p := range s.Participants {
		if p.Quit {
			continue
		}
		active++
		if !p.Ready {
			return false
		}
	}
	return active > 0
}

// AllTerminal is true once every participant has finished or quit.
func (s *Session) AllTerminal() bool {
	for _, p := range s.Participants {
		if !p.Terminal() {
			return false
		}
	}
	return len(s.Participants) > 0
}

// Finishers returns non-quit finished participants ordered by finish time
// (earlier finish ranks higher; ties broken by user id for determinism).
func (s *Session) Finishers() []*Participant {
	var out []*Participant
	for _, p := range s.Participants {
		if p.Finished && !p.Quit {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TerminalAt.Equal(out[j].TerminalAt) {
			return out[i].TerminalAt.Before(out[j].TerminalAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Errors surfaced by the coordinator. Handlers map these onto structured
// error notices for subscribers.
var (
	ErrNotFound     = errf("session or user not found")
	ErrInvalidState = errf("action not allowed in current session state")
	ErrForbidden    = errf("user is not a participant of this session")
	ErrInvalidArgs  = errf("invalid arguments")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
