package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(id string) Outcome { return Matched(nil, id, 0.9) }

func TestDecideExclusivity(t *testing.T) {
	t.Parallel()

	state := NewDebounceState(3, time.Minute)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	var commits []int
	for i, id := range []string{"A", "A", "B", "A", "A", "A"} {
		d := Decide(state, match(id), now.Add(time.Duration(i)*time.Second))
		if d.Action == ActionCommit {
			commits = append(commits, i)
			assert.Equal(t, "A", d.IdentityID)
		}
	}

	assert.Equal(t, []int{5}, commits, "only the third A after B commits")
	assert.Zero(t, state.Counter("A"))
	assert.Zero(t, state.Counter("B"))
}

func TestDecideCooldown(t *testing.T) {
	t.Parallel()

	const cooldown = time.Minute
	state := NewDebounceState(2, cooldown)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, ActionConfirming, Decide(state, match("A"), t0).Action)
	require.Equal(t, ActionCommit, Decide(state, match("A"), t0).Action)

	for _, offset := range []time.Duration{time.Second, 30 * time.Second, cooldown - time.Nanosecond} {
		d := Decide(state, match("A"), t0.Add(offset))
		assert.Equal(t, ActionAlreadyAttended, d.Action, "offset %s", offset)
		assert.Zero(t, state.Counter("A"), "cooldown frames do not count")
	}

	at := t0.Add(cooldown)
	assert.Equal(t, ActionConfirming, Decide(state, match("A"), at).Action)
	assert.Equal(t, ActionCommit, Decide(state, match("A"), at).Action)

	last, ok := state.LastCommit("A")
	require.True(t, ok)
	assert.Equal(t, at, last)
}

func TestDecideSpoofIsNeutral(t *testing.T) {
	t.Parallel()

	state := NewDebounceState(3, time.Minute)
	now := time.Now()

	Decide(state, match("A"), now)
	Decide(state, match("A"), now)
	d := Decide(state, Spoof(nil, 0.1), now)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, 2, state.Counter("A"))

	assert.Equal(t, ActionCommit, Decide(state, match("A"), now).Action)
}

func TestDecideResets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome Outcome
	}{
		{"no face", NoFace()},
		{"unrecognized", Unrecognized(nil, 0.3)},
		{"empty store", Unrecognized(nil, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			state := NewDebounceState(3, time.Minute)
			now := time.Now()
			Decide(state, match("A"), now)
			Decide(state, match("A"), now)

			d := Decide(state, tt.outcome, now)
			assert.Equal(t, ActionReset, d.Action)
			assert.Zero(t, state.Counter("A"))

			assert.Equal(t, ActionConfirming, Decide(state, match("A"), now).Action)
		})
	}
}

func TestDecideMatchResetsOthersOnly(t *testing.T) {
	t.Parallel()

	state := NewDebounceState(5, time.Minute)
	now := time.Now()
	Decide(state, match("A"), now)
	Decide(state, match("A"), now)

	d := Decide(state, match("B"), now)
	assert.Equal(t, ActionConfirming, d.Action)
	assert.Equal(t, 1, d.Count)
	assert.Zero(t, state.Counter("A"))
	assert.Equal(t, 1, state.Counter("B"))
}

func TestConfirmFramesOfOneCommitsImmediately(t *testing.T) {
	t.Parallel()

	state := NewDebounceState(0, 0)
	assert.Equal(t, ActionCommit, Decide(state, match("A"), time.Now()).Action)
}
