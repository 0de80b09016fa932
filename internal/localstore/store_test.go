package localstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.Context(), filepath.Join(t.TempDir(), "state", "fallback.db"), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func draftSnapshot(name string) autosave.FormSnapshot {
	return autosave.NewSnapshot(
		autosave.Field{Name: "full_name", Value: autosave.Text(name)},
		autosave.Field{Name: "languages_spoken", Value: autosave.List("isiXhosa", "English")},
	)
}

func TestStore_SetGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	key := autosave.PersistenceKey{OwnerID: "u-1", RecordID: "a-1"}.FallbackKey()

	_, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC).UnixMilli()
	require.NoError(t, s.Set(ctx, key, autosave.FallbackRecord{Snapshot: draftSnapshot("Asanda"), Timestamp: now}))

	rec, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now, rec.Timestamp)
	assert.True(t, autosave.NewDetector().Equal(draftSnapshot("Asanda"), rec.Snapshot))

	langs, _ := rec.Snapshot.Get("languages_spoken")
	assert.True(t, langs.IsList())

	// Overwrite keeps a single row per key.
	require.NoError(t, s.Set(ctx, key, autosave.FallbackRecord{Snapshot: draftSnapshot("Asanda M."), Timestamp: now + 1}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name, _ := entries[0].Record.Snapshot.Get("full_name")
	assert.Equal(t, "Asanda M.", name.String())

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, found, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ListOrdersOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()

	newer := autosave.PersistenceKey{OwnerID: "u-1", RecordID: "b"}
	older := autosave.PersistenceKey{OwnerID: "u-2", RecordID: "a"}

	require.NoError(t, s.Set(ctx, newer.FallbackKey(), autosave.FallbackRecord{Snapshot: draftSnapshot("B"), Timestamp: 200}))
	require.NoError(t, s.Set(ctx, older.FallbackKey(), autosave.FallbackRecord{Snapshot: draftSnapshot("A"), Timestamp: 100}))
	require.NoError(t, s.Set(ctx, "settings:theme", autosave.FallbackRecord{Timestamp: 50}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, older, entries[0].Key)
	assert.Equal(t, newer, entries[1].Key)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	key := autosave.PersistenceKey{OwnerID: "u-1", RecordID: "a-1"}.FallbackKey()

	first, err := Open(t.Context(), path, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, first.Set(t.Context(), key, autosave.FallbackRecord{Snapshot: draftSnapshot("Odwa"), Timestamp: 7}))
	require.NoError(t, first.Close())

	second, err := Open(t.Context(), path, testLogger(t))
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, path, second.Path())

	rec, found, err := second.Get(t.Context(), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), rec.Timestamp)
}

func TestStore_BacksSynchronizer(t *testing.T) {
	s := openTestStore(t)
	logger := testLogger(t)

	conn := autosave.NewConnectivity(false, logger)
	syncer := autosave.New(autosave.Deps{
		Persister: autosave.PersisterFunc(func(context.Context, autosave.PersistenceKey, autosave.FormSnapshot) error {
			t.Error("remote persistence attempted while offline")
			return nil
		}),
		Fallback:     s,
		Connectivity: conn,
	}, logger)
	defer syncer.Close()

	syncer.Configure(autosave.Options{OwnerID: "u-1", RecordID: "a-1", Snapshot: draftSnapshot("Luyolo")})
	syncer.SaveNow()

	assert.Equal(t, autosave.StatusOffline, syncer.Status().Status.Kind)

	entries, err := s.List(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a-1", entries[0].Key.RecordID)
}
