package notices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard(t *testing.T) {
	board := NewBoard()
	t.Run("insert", func(t *testing.T) {
		require.True(t, board.Insert("b", "second", 1))
		require.True(t, board.Insert("a", "first", 2))
		assert.Equal(t, []Notice{{Key: "a", Message: "first"}, {Key: "b", Message: "second"}}, board.All())
	})
	t.Run("insert replaces", func(t *testing.T) {
		require.True(t, board.Insert("a", "updated", 3))
		message, ok := board.Get("a")
		require.True(t, ok)
		assert.Equal(t, "updated", message)
		assert.Len(t, board.All(), 2)
	})
	t.Run("delete", func(t *testing.T) {
		assert.True(t, board.Delete("a", 4))
		assert.False(t, board.Delete("a", 5))
		assert.False(t, board.Delete("missing", 6))
		assert.Equal(t, []Notice{{Key: "b", Message: "second"}}, board.All())
		_, ok := board.Get("a")
		assert.False(t, ok)
	})
}

func TestBoardConvergence(t *testing.T) {
	t.Run("late insert after delete", func(t *testing.T) {
		board := NewBoard()
		require.True(t, board.Insert("rules", "v2", 10))
		require.True(t, board.Delete("rules", 20))
		// an insert emitted before the delete arrives last
		require.False(t, board.Insert("rules", "v1", 15))
		_, ok := board.Get("rules")
		require.False(t, ok)
	})
	t.Run("delete before insert", func(t *testing.T) {
		board := NewBoard()
		require.False(t, board.Delete("rules", 20))
		require.False(t, board.Insert("rules", "v1", 10))
		require.True(t, board.Insert("rules", "v3", 30))
		message, ok := board.Get("rules")
		require.True(t, ok)
		require.Equal(t, "v3", message)
	})
	t.Run("stale update", func(t *testing.T) {
		board := NewBoard()
		require.True(t, board.Insert("rules", "new", 20))
		require.False(t, board.Insert("rules", "old", 10))
		message, _ := board.Get("rules")
		require.Equal(t, "new", message)
	})
}

func TestBoardGC(t *testing.T) {
	board := NewBoard()
	board.Insert("kept", "message", 1)
	board.Insert("old", "message", 1)
	board.Delete("old", 5)
	board.Insert("recent", "message", 1)
	board.Delete("recent", 50)

	require.Equal(t, 1, board.GC(10))
	require.Equal(t, []Notice{{Key: "kept", Message: "message"}}, board.All())
	// the remaining tombstone still shadows older inserts
	require.False(t, board.Insert("recent", "message", 20))
	require.Equal(t, 1, board.GC(100))
}

func TestBoardLocalWrites(t *testing.T) {
	board := NewBoard()
	t.Run("set overrides a peer ahead", func(t *testing.T) {
		require.True(t, board.Insert("rules", "old", 100))
		at := board.Set("rules", "new", 40)
		assert.Equal(t, int64(101), at)
		message, ok := board.Get("rules")
		require.True(t, ok)
		assert.Equal(t, "new", message)
		// the replicated copy of the write is not newer than itself
		assert.False(t, board.Insert("rules", "new", at))
	})
	t.Run("set uses the clock", func(t *testing.T) {
		assert.Equal(t, int64(500), board.Set("rules", "newer", 500))
	})
	t.Run("remove", func(t *testing.T) {
		at, removed := board.Remove("rules", 500)
		assert.Equal(t, int64(501), at)
		assert.True(t, removed)
		_, removed = board.Remove("rules", 600)
		assert.False(t, removed)
		_, ok := board.Get("rules")
		assert.False(t, ok)
	})
}
