package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatpipe/core"
)

var (
	_ core.PersistenceStore = (*InMemoryStore)(nil)
	_ core.PersistenceStore = (*SQLiteStore)(nil)
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]core.PersistenceStore {
	return map[string]core.PersistenceStore{
		"memory": NewInMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func sampleSession() *core.ChatSession {
	s := core.NewChatSession("Trip planning")
	s.AddMessage(core.RoleUser, "Where should I go in spring?")
	reply := core.NewStreamingMessage(core.RoleAssistant)
	reply.AppendContent("Kyoto")
	s.Append(reply)
	return s
}

func TestStore_SessionRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := sampleSession()
			require.NoError(t, st.SaveSession(s))

			got, err := st.LoadSession(s.ID)
			require.NoError(t, err)
			assert.Equal(t, s.Title, got.Title)
			assert.Equal(t, s.Preview, got.Preview)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "Kyoto", got.Messages[1].Content)
			assert.True(t, got.Messages[1].IsStreaming)
			assert.WithinDuration(t, s.UpdatedAt, got.UpdatedAt, time.Microsecond)

			got.SetTitle("mutated")
			again, err := st.LoadSession(s.ID)
			require.NoError(t, err)
			assert.Equal(t, "Trip planning", again.Title)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := sampleSession()
			require.NoError(t, st.SaveSession(s))
			s.Archive()
			s.AddMessage(core.RoleUser, "and summer?")
			require.NoError(t, st.SaveSession(s))

			got, err := st.LoadSession(s.ID)
			require.NoError(t, err)
			assert.True(t, got.IsArchived)
			assert.Len(t, got.Messages, 3)

			all, err := st.LoadAllSessions()
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.LoadSession("missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
			assert.ErrorIs(t, st.DeleteSession("missing"), core.ErrNotFound)
			_, err = st.LoadSettings()
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := sampleSession()
			require.NoError(t, st.SaveSession(s))
			require.NoError(t, st.DeleteSession(s.ID))

			_, err := st.LoadSession(s.ID)
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestStore_Settings(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			settings := core.DefaultSettings()
			settings.Theme = core.ThemeLight
			settings.SystemPrompt = "be terse"
			require.NoError(t, st.SaveSettings(settings))

			got, err := st.LoadSettings()
			require.NoError(t, err)
			assert.Equal(t, settings, got)

			settings.Temperature = 1.5
			require.NoError(t, st.SaveSettings(settings))
			got, err = st.LoadSettings()
			require.NoError(t, err)
			assert.InDelta(t, 1.5, got.Temperature, 1e-9)
		})
	}
}

func TestSQLiteStore_LoadAllByRecency(t *testing.T) {
	st := newSQLiteStore(t)

	older := core.NewChatSession("older")
	older.UpdatedAt = time.Now().Add(-time.Hour).UTC()
	newer := core.NewChatSession("newer")
	require.NoError(t, st.SaveSession(older))
	require.NoError(t, st.SaveSession(newer))

	all, err := st.LoadAllSessions()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	s := sampleSession()
	require.NoError(t, st.SaveSession(s))
	require.NoError(t, st.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Len(t, got.Messages, 2)
}
