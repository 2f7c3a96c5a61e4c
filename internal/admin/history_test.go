package admin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStore_KeepsMostRecent(t *testing.T) {
	s := NewHistoryStore(3)
	for _, in := range []string{"a", "b", "c", "d"} {
		s.Add(HistoryEvent{Input: in})
	}

	got := s.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Input)
	assert.Equal(t, "d", got[2].Input)
	assert.Equal(t, int64(4), got[2].ID)
	assert.False(t, got[2].Time.IsZero())

	assert.Len(t, s.List(2), 2)
	s.Clear()
	assert.Empty(t, s.List(10))
}

func TestHistoryStore_TruncatesLongInput(t *testing.T) {
	s := NewHistoryStore(10)
	ev := s.Add(HistoryEvent{Input: strings.Repeat("界", 400)})
	assert.True(t, ev.Truncated)
	assert.LessOrEqual(t, len(ev.Input), maxHistoryInput)
	assert.True(t, strings.HasSuffix(ev.Input, "界"), "no partial rune at the cut")
}

func TestHistoryStore_Subscribe(t *testing.T) {
	s := NewHistoryStore(10)
	ch, cancel := s.Subscribe(1)

	s.Add(HistoryEvent{Input: "one"})
	s.Add(HistoryEvent{Input: "dropped"}) // 缓冲已满，不阻塞

	ev := <-ch
	assert.Equal(t, "one", ev.Input)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()
}
