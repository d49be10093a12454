package recall

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"artjournal-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	messages []model.Message
	err      error

	mu      sync.Mutex
	queries int
	start   time.Time
	end     time.Time
	limit   int
}

func (f *fakeStore) RecentMessages(_ context.Context, _ string, start, end time.Time, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.start, f.end, f.limit = start, end, limit
	return f.messages, f.err
}

func (f *fakeStore) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

type call struct {
	command string
	args    map[string]any
	store   bool
}

type fakeDispatcher struct {
	results map[string]any
	errs    map[string]error

	mu    sync.Mutex
	calls []call
}

func (f *fakeDispatcher) Send(_ context.Context, command string, args map[string]any, store bool) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{command: command, args: args, store: store})
	if err := f.errs[command]; err != nil {
		return nil, err
	}
	return f.results[command], nil
}

func (f *fakeDispatcher) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.command
	}
	return out
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(store Store, d Dispatcher) *Scheduler {
	return NewScheduler(store, d, Options{
		Grace:  time.Millisecond,
		Window: 10 * time.Second,
		Limit:  5,
		BotID:  "10001",
		Now:    func() time.Time { return fixedNow },
	})
}

func wait(t *testing.T, h *Handle) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := h.Wait(ctx)
	require.NoError(t, err)
	return state
}

func TestRecallNumericIDIsRecalled(t *testing.T) {
	store := &fakeStore{messages: []model.Message{
		{ID: "uuid-1", UserID: "10001"},
		{ID: "555", UserID: "20002"},
		{ID: "4242", UserID: "10001"},
		{ID: "4000", UserID: "10001"},
	}}
	d := &fakeDispatcher{results: map[string]any{"DELETE_MSG": map[string]any{"status": "ok"}}}

	h := newTestScheduler(store, d).Schedule("g1", time.Millisecond, "[test]")
	assert.Equal(t, StateRecalled, wait(t, h))
	assert.Equal(t, "4242", h.MessageID())

	require.Len(t, d.calls, 1)
	assert.Equal(t, "DELETE_MSG", d.calls[0].command)
	assert.Equal(t, map[string]any{"message_id": "4242"}, d.calls[0].args)
	assert.False(t, d.calls[0].store)

	assert.Equal(t, fixedNow.Add(-10*time.Second), store.start)
	assert.Equal(t, fixedNow.Add(time.Second), store.end)
	assert.Equal(t, 5, store.limit)
}

func TestRecallNonNumericIDsNeverDispatch(t *testing.T) {
	store := &fakeStore{messages: []model.Message{
		{ID: "c0ffee-uuid", UserID: "10001"},
		{ID: "12a", UserID: "10001"},
		{ID: "777", UserID: "someone-else"},
	}}
	d := &fakeDispatcher{}

	h := newTestScheduler(store, d).Schedule("g1", time.Millisecond, "")
	assert.Equal(t, StateNotFound, wait(t, h))
	assert.Empty(t, d.commands())
}

func TestRecallCommandOrder(t *testing.T) {
	store := &fakeStore{messages: []model.Message{{ID: "99", UserID: "10001"}}}

	t.Run("stops at first success", func(t *testing.T) {
		d := &fakeDispatcher{
			errs: map[string]error{"DELETE_MSG": errors.New("unknown action")},
			results: map[string]any{
				"delete_msg": false,
				"RECALL_MSG": map[string]any{"retcode": 0},
				"recall_msg": true,
			},
		}
		h := newTestScheduler(store, d).Schedule("g1", 0, "")
		assert.Equal(t, StateRecalled, wait(t, h))
		assert.Equal(t, []string{"DELETE_MSG", "delete_msg", "RECALL_MSG"}, d.commands())
	})

	t.Run("all fail completes quietly", func(t *testing.T) {
		d := &fakeDispatcher{results: map[string]any{
			"DELETE_MSG": map[string]any{"status": "failed", "retcode": 100},
			"delete_msg": nil,
			"RECALL_MSG": "ok",
		}}
		h := newTestScheduler(store, d).Schedule("g1", 0, "")
		assert.Equal(t, StateFailed, wait(t, h))
		assert.Equal(t, DefaultCommands, d.commands())
	})
}

func TestRecallCancellation(t *testing.T) {
	t.Run("during grace", func(t *testing.T) {
		store := &fakeStore{messages: []model.Message{{ID: "1", UserID: "10001"}}}
		d := &fakeDispatcher{}
		s := NewScheduler(store, d, Options{Grace: time.Hour, BotID: "10001"})

		h := s.Schedule("g1", time.Millisecond, "")
		h.Cancel()
		assert.Equal(t, StateCancelled, wait(t, h))
		assert.Zero(t, store.queryCount())
		assert.Empty(t, d.commands())
	})

	t.Run("during delay", func(t *testing.T) {
		store := &fakeStore{messages: []model.Message{{ID: "1", UserID: "10001"}}}
		d := &fakeDispatcher{}
		s := newTestScheduler(store, d)

		h := s.Schedule("g1", time.Hour, "")
		require.Eventually(t, func() bool { return h.State() == StateLocated }, time.Second, time.Millisecond)
		assert.Equal(t, 1, s.CancelChat("g1"))
		assert.Equal(t, StateCancelled, wait(t, h))
		assert.Empty(t, d.commands())
		assert.Empty(t, s.Pending())
	})
}

func TestRecallStoreError(t *testing.T) {
	var observed []State
	s := NewScheduler(&fakeStore{err: errors.New("db down")}, &fakeDispatcher{}, Options{
		BotID:   "10001",
		Observe: func(st State) { observed = append(observed, st) },
	})

	h := s.Schedule("g1", 0, "")
	assert.Equal(t, StateFailed, wait(t, h))
	assert.Equal(t, []State{StateFailed}, observed)
}

func TestShutdown(t *testing.T) {
	store := &fakeStore{}
	s := NewScheduler(store, &fakeDispatcher{}, Options{Grace: time.Hour})
	h1 := s.Schedule("g1", 0, "")
	h2 := s.Schedule("g2", 0, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Equal(t, StateCancelled, h1.State())
	assert.Equal(t, StateCancelled, h2.State())

	late := s.Schedule("g3", 0, "")
	assert.Equal(t, StateCancelled, wait(t, late))
}

func TestSucceeded(t *testing.T) {
	type okResult struct{ ok bool }

	tests := []struct {
		name   string
		result any
		want   bool
	}{
		{"true", true, true},
		{"false", false, false},
		{"status ok", map[string]any{"status": "OK"}, true},
		{"status success", map[string]any{"status": "success"}, true},
		{"retcode zero", map[string]any{"retcode": 0}, true},
		{"code zero float", map[string]any{"code": float64(0)}, true},
		{"retcode missing", map[string]any{"status": "failed"}, false},
		{"retcode non zero", map[string]any{"retcode": 1}, false},
		{"retcode json number", map[string]any{"retcode": json.Number("0")}, true},
		{"retcode string zero", map[string]any{"retcode": "0"}, false},
		{"failed status string code", map[string]any{"status": "failed", "code": "0"}, false},
		{"nil", nil, false},
		{"string", "ok", false},
		{"struct", okResult{ok: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Succeeded(tt.result))
		})
	}
}
