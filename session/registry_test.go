package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatpipe/core"
)

var _ core.SessionRegistry = (*Registry)(nil)

func TestRegistry_CreateMakesActive(t *testing.T) {
	r := NewRegistry()
	first := r.Create("first")
	second := r.Create("second")

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, r.ActiveID())

	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "second", active.Title)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SetActiveIgnoresUnknown(t *testing.T) {
	r := NewRegistry()
	id := r.Create("a")
	r.Create("b")

	r.SetActive(id)
	assert.Equal(t, id, r.ActiveID())

	r.SetActive("missing")
	assert.Equal(t, id, r.ActiveID())
}

func TestRegistry_GetReturnsClone(t *testing.T) {
	r := NewRegistry()
	id := r.Create("a")

	s, ok := r.Get(id)
	require.True(t, ok)
	s.AddMessage(core.RoleUser, "not stored")

	again, _ := r.Get(id)
	assert.Empty(t, again.Messages)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry()
	id := r.Create("a")

	updated, err := r.Update(id, func(s *core.ChatSession) { s.AddMessage(core.RoleUser, "hello") })
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)
	assert.Equal(t, "hello", updated.Preview)

	_, err = r.Update("missing", func(*core.ChatSession) {})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRegistry_ListByRecency(t *testing.T) {
	r := NewRegistry()
	old := core.NewChatSession("old")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	r.Put(old)
	fresh := r.Create("fresh")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, fresh, list[0].ID)
	assert.Equal(t, old.ID, list[1].ID)

	_, err := r.Update(old.ID, func(s *core.ChatSession) { s.SetTitle("renamed") })
	require.NoError(t, err)
	assert.Equal(t, old.ID, r.List()[0].ID)
}

func TestRegistry_Delete(t *testing.T) {
	r := NewRegistry()
	keep := r.Create("keep")
	drop := r.Create("drop")

	assert.True(t, r.Delete(drop))
	assert.False(t, r.Delete(drop))
	assert.Empty(t, r.ActiveID())

	_, ok := r.Active()
	assert.False(t, ok)
	_, ok = r.Get(keep)
	assert.True(t, ok)
}

func TestRegistry_PutDoesNotChangeActive(t *testing.T) {
	r := NewRegistry()
	id := r.Create("a")
	r.Put(core.NewChatSession("loaded"))
	assert.Equal(t, id, r.ActiveID())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	id := r.Create("shared")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(id, func(s *core.ChatSession) { s.AddMessage(core.RoleUser, "x") })
			_ = r.List()
		}()
	}
	wg.Wait()

	s, _ := r.Get(id)
	assert.Len(t, s.Messages, 20)
}
