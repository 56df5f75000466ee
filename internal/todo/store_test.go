package todo

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "llmflow/internal/errors"
)

type memoryBackend struct {
	records []Record
	loadErr error
	saveErr error
	saves   int
}

func (m *memoryBackend) Load(context.Context) ([]Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.records, nil
}

func (m *memoryBackend) Save(_ context.Context, records []Record) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = records
	return nil
}

func (m *memoryBackend) Close() error { return nil }

func fixedClock() func() time.Time {
	current := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{}
	store := Open(ctx, backend, WithClock(fixedClock()))

	first := store.Add(ctx, "Buy groceries for dinner")
	second := store.Add(ctx, "Call mom")

	assert.Equal(t, 1, first.Record.ID)
	assert.Equal(t, 2, second.Record.ID)
	assert.True(t, first.Persisted)
	assert.False(t, first.Record.Completed)
	assert.Nil(t, first.Record.CompletedAt)
	assert.Equal(t, 2, backend.saves)
	assert.Len(t, backend.records, 2)
}

func TestAddUsesMaxIDPlusOne(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{records: []Record{{ID: 7, Task: "a"}, {ID: 3, Task: "b"}}}
	store := Open(ctx, backend)

	res := store.Add(ctx, "c")
	assert.Equal(t, 8, res.Record.ID)

	_, ok := store.Delete(ctx, 8)
	require.True(t, ok)
	assert.Equal(t, 8, store.Add(ctx, "d").Record.ID)
}

func TestCompleteMarksRecord(t *testing.T) {
	ctx := context.Background()
	store := Open(ctx, &memoryBackend{}, WithClock(fixedClock()))
	added := store.Add(ctx, "write report")

	res, err := store.Complete(ctx, added.Record.ID)
	require.NoError(t, err)
	assert.True(t, res.Record.Completed)
	require.NotNil(t, res.Record.CompletedAt)
	assert.True(t, res.Record.CompletedAt.After(res.Record.CreatedAt.Time))

	assert.Empty(t, store.Active())
	assert.Len(t, store.CompletedOnly(), 1)
}

func TestCompleteUnknownIDLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{}
	store := Open(ctx, backend)
	store.Add(ctx, "only")
	before := store.All()
	saves := backend.saves

	_, err := store.Complete(ctx, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTodoNotFound)
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
	assert.Equal(t, before, store.All())
	assert.Equal(t, saves, backend.saves)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{}
	store := Open(ctx, backend)
	store.Add(ctx, "a")
	store.Add(ctx, "b")

	res, ok := store.Delete(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "a", res.Record.Task)
	saves := backend.saves

	_, ok = store.Delete(ctx, 1)
	assert.False(t, ok)
	assert.Equal(t, saves, backend.saves)
	require.Len(t, store.All(), 1)
	assert.Equal(t, 2, store.All()[0].ID)
}

func TestListsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := Open(ctx, &memoryBackend{})
	for _, task := range []string{"one", "two", "three", "four"} {
		store.Add(ctx, task)
	}
	_, err := store.Complete(ctx, 3)
	require.NoError(t, err)
	_, err = store.Complete(ctx, 1)
	require.NoError(t, err)

	ids := func(records []Record) []int {
		out := make([]int, 0, len(records))
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []int{1, 2, 3, 4}, ids(store.All()))
	assert.Equal(t, []int{2, 4}, ids(store.Active()))
	assert.Equal(t, []int{1, 3}, ids(store.CompletedOnly()))
}

func TestLoadFailureFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	store := Open(ctx, &memoryBackend{loadErr: stdErrors.New("corrupt")})
	assert.Empty(t, store.All())
	assert.Equal(t, 1, store.Add(ctx, "fresh").Record.ID)
}

func TestSaveFailureIsReported(t *testing.T) {
	ctx := context.Background()
	backend := &memoryBackend{saveErr: stdErrors.New("disk full")}
	store := Open(ctx, backend)

	res := store.Add(ctx, "keep in memory")
	assert.False(t, res.Persisted)
	require.Error(t, res.SaveErr)
	assert.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(res.SaveErr))
	assert.Len(t, store.All(), 1)
}

func TestRoundTripThroughFile(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "todos.json"))
	require.NoError(t, err)

	store := Open(ctx, backend)
	store.Add(ctx, "first")
	store.Add(ctx, "second")
	_, err = store.Complete(ctx, 2)
	require.NoError(t, err)
	want := store.All()

	reopened := Open(ctx, backend)
	got := reopened.All()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Task, got[i].Task)
		assert.Equal(t, want[i].Completed, got[i].Completed)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt.Time))
		if want[i].CompletedAt == nil {
			assert.Nil(t, got[i].CompletedAt)
		} else {
			require.NotNil(t, got[i].CompletedAt)
			assert.True(t, want[i].CompletedAt.Equal(got[i].CompletedAt.Time))
		}
	}
}

func TestOpenKeepsCompletedRecordWithoutTimestamp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "todos.json")
	doc := `[{"id": 1, "task": "Buy milk", "created_at": "2024-05-01T09:30:00", "completed": false, "completed_at": null},
	         {"id": 2, "task": "Call mom", "created_at": "2024-05-02T10:00:00", "completed": true, "completed_at": null}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	backend, err := NewFileBackend(path)
	require.NoError(t, err)
	store := Open(ctx, backend)
	require.Len(t, store.All(), 2)

	res := store.Add(ctx, "new")
	require.True(t, res.Persisted)
	assert.Equal(t, 3, res.Record.ID)

	reopened := Open(ctx, backend)
	got := reopened.All()
	require.Len(t, got, 3)
	assert.Equal(t, "Buy milk", got[0].Task)
	assert.Equal(t, "Call mom", got[1].Task)
	assert.True(t, got[1].Completed)
	require.NotNil(t, got[1].CompletedAt)
	assert.True(t, got[1].CompletedAt.Equal(got[1].CreatedAt.Time))
}

func TestMutationsAreAudited(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	audit := slog.New(slog.NewJSONHandler(&buf, nil))
	backend := &memoryBackend{}
	store := Open(ctx, backend, WithClock(fixedClock()), WithAuditLogger(audit))

	store.Add(ctx, "Buy milk")
	_, err := store.Complete(ctx, 1)
	require.NoError(t, err)
	backend.saveErr = stdErrors.New("disk full")
	store.Delete(ctx, 1)
	_, err = store.Complete(ctx, 9)
	require.ErrorIs(t, err, ErrTodoNotFound)

	type entry struct {
		Msg       string `json:"msg"`
		Action    string `json:"action"`
		ID        int    `json:"id"`
		Task      string `json:"task"`
		Persisted bool   `json:"persisted"`
	}
	var entries []entry
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var e entry
		require.NoError(t, dec.Decode(&e))
		entries = append(entries, e)
	}

	require.Len(t, entries, 3)
	assert.Equal(t, entry{Msg: "待办已变更", Action: "add", ID: 1, Task: "Buy milk", Persisted: true}, entries[0])
	assert.Equal(t, "complete", entries[1].Action)
	assert.Equal(t, "delete", entries[2].Action)
	assert.False(t, entries[2].Persisted)
}
