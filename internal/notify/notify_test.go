package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/errors"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	titles   []string
	errs     []error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	if params != nil {
		title, _ := params.Title()
		f.titles = append(f.titles, title)
	}
	return f.errs
}

func testEvent() attendance.Event {
	at := time.Date(2026, 3, 2, 8, 1, 2, 0, time.UTC)
	return attendance.NewEvent("E1", "Alice", "Ops", at)
}

func TestMessage(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 2, 8, 1, 2, 0, time.UTC)
	tests := []struct {
		name string
		ev   attendance.Event
		node string
		want string
	}{
		{"full", attendance.NewEvent("E1", "Alice", "Ops", at), "gate-1", "Alice (E1, Ops) checked in at 08:01:02 on 2026-03-02 [gate-1]"},
		{"no department", attendance.NewEvent("E1", "Alice", "", at), "", "Alice (E1) checked in at 08:01:02 on 2026-03-02"},
		{"no name", attendance.NewEvent("E1", "", "", at), "", "E1 checked in at 08:01:02 on 2026-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Message(tt.ev, tt.node))
		})
	}
}

func TestNotifierRecordSendsTitledMessage(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	n := newNotifier(s, "", "gate-1")

	require.NoError(t, n.Record(t.Context(), testEvent()))
	require.Len(t, s.messages, 1)
	assert.Contains(t, s.messages[0], "Alice (E1, Ops)")
	assert.Equal(t, []string{DefaultTitle}, s.titles)
}

func TestNotifierRecordReportsFailures(t *testing.T) {
	t.Parallel()

	s := &fakeSender{errs: []error{nil, errors.NewStd("post https://hooks.example.com/T0KEN failed")}}
	n := newNotifier(s, "Front door", "")

	err := n.Record(t.Context(), testEvent())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotify))
	assert.NotContains(t, err.Error(), "T0KEN")
}

func TestNotifierRecordHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	n := newNotifier(s, "", "")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, n.Record(ctx, testEvent()), context.Canceled)
	assert.Empty(t, s.messages)
}

func TestNewValidatesURLs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "", "", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = New([]string{"  "}, "", "", 0)
	require.Error(t, err)

	_, err = New([]string{"nosuchservice://token@host"}, "", "", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	n, err := New([]string{"generic://example.com/hook"}, "Front door", "gate-1", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Front door", n.title)
}
