package recognition

import (
	"fmt"
	"time"
)

// Action is what the loop should do after a frame has been decided.
type Action int

const (
	// ActionNone leaves every counter untouched (spoofed frames).
	ActionNone Action = iota
	// ActionReset cleared every counter.
	ActionReset
	// ActionConfirming counted the match but has not reached the confirm
	// threshold yet.
	ActionConfirming
	// ActionAlreadyAttended ignored a match inside the identity's cooldown.
	ActionAlreadyAttended
	// ActionCommit means the identity reached the threshold and an
	// attendance event must be written.
	ActionCommit
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionReset:
		return "reset"
	case ActionConfirming:
		return "confirming"
	case ActionAlreadyAttended:
		return "already_attended"
	case ActionCommit:
		return "commit"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Decision is the result of Decide. Count is the identity's counter after the
// frame, zero after a commit.
type Decision struct {
	Action     Action
	IdentityID string
	Count      int
}

// DebounceState holds consecutive-match counters and last commit times per
// identity. It belongs to one recognition session and is not safe for
// concurrent use.
type DebounceState struct {
	confirmFrames int
	cooldown      time.Duration
	counters      map[string]int
	lastCommit    map[string]time.Time
}

// NewDebounceState returns an empty state. confirmFrames below one is
// treated as one.
func NewDebounceState(confirmFrames int, cooldown time.Duration) *DebounceState {
	return &DebounceState{
		confirmFrames: max(confirmFrames, 1),
		cooldown:      cooldown,
		counters:      make(map[string]int),
		lastCommit:    make(map[string]time.Time),
	}
}

// Counter returns the current consecutive count for id.
func (s *DebounceState) Counter(id string) int {
	return s.counters[id]
}

// LastCommit returns when id was last committed in this session.
func (s *DebounceState) LastCommit(id string) (time.Time, bool) {
	t, ok := s.lastCommit[id]
	return t, ok
}

func (s *DebounceState) resetAll() {
	clear(s.counters)
}

// Decide folds one frame outcome into the state.
//
// NoFace and Unrecognized reset every counter. Spoof changes nothing. A match
// resets the other identities, is ignored while the identity is cooling down,
// and otherwise counts towards the confirm threshold. Reaching the threshold
// records now as the commit time and zeroes the counter.
func Decide(s *DebounceState, o Outcome, now time.Time) Decision {
	switch o.Kind {
	case KindSpoof:
		return Decision{Action: ActionNone}
	case KindMatched:
	default:
		s.resetAll()
		return Decision{Action: ActionReset}
	}

	id := o.IdentityID
	for other := range s.counters {
		if other != id {
			s.counters[other] = 0
		}
	}

	if last, ok := s.lastCommit[id]; ok && now.Sub(last) < s.cooldown {
		return Decision{Action: ActionAlreadyAttended, IdentityID: id, Count: s.counters[id]}
	}

	s.counters[id]++
	if s.counters[id] < s.confirmFrames {
		return Decision{Action: ActionConfirming, IdentityID: id, Count: s.counters[id]}
	}

	s.lastCommit[id] = now
	s.counters[id] = 0
	return Decision{Action: ActionCommit, IdentityID: id}
}
