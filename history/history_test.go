package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/polyvox/internal/types"
)

func openStore(t *testing.T, limit int) *Store {
	t.Helper()
	s, err := Open("", limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func entry(input string, texts ...string) types.HistoryEntry {
	e := types.HistoryEntry{InputText: input, InputLanguage: "en"}
	for i, text := range texts {
		e.Translations = append(e.Translations, types.TranslationResult{
			Language: []string{"hi", "es", "fr"}[i],
			Text:     text,
		})
	}
	return e
}

func TestAdd(t *testing.T) {
	s := openStore(t, 0)

	got, ok, err := s.Add(entry("  hello  ", "नमस्ते", "  "))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, got.ID)
	assert.NotZero(t, got.Timestamp)
	assert.Equal(t, "hello", got.InputText)
	assert.Len(t, got.Translations, 1, "blank translations are dropped")

	tests := []struct {
		name string
		e    types.HistoryEntry
	}{
		{"no translations", entry("hello")},
		{"only blank translations", entry("hello", "", " ")},
		{"blank input", entry("  ", "hola")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := s.Add(tt.e)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListNewestFirstAndLimit(t *testing.T) {
	s := openStore(t, 2)

	for _, in := range []string{"one", "two", "three"} {
		_, ok, err := s.Add(entry(in, "x"))
		require.NoError(t, err)
		require.True(t, ok)
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].InputText)
	assert.Equal(t, "two", list[1].InputText)
}

func TestRemoveAndClear(t *testing.T) {
	s := openStore(t, 0)

	a, _, err := s.Add(entry("a", "x"))
	require.NoError(t, err)
	_, _, err = s.Add(entry("b", "y"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(a.ID))
	assert.ErrorIs(t, s.Remove(a.ID), ErrNotFound)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].InputText)

	require.NoError(t, s.Clear())
	list, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, ok, err := s.Add(entry("a", "x"))
	assert.NoError(t, err)
	assert.False(t, ok)
	list, err := s.List()
	assert.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, s.Clear())
	assert.NoError(t, s.Close())
}
