package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMute(t *testing.T) {
	scheduler := NewManualScheduler(epoch)
	expired := []Entry{}
	store := NewStore("p1", scheduler, func(e Entry) { expired = append(expired, e) })

	entry, err := store.Mute("bob", 5)
	require.NoError(t, err)
	assert.Equal(t, "p1", entry.Owner)
	assert.Equal(t, 5*time.Minute, entry.Remaining(epoch))
	assert.True(t, store.Restricted("bob"))

	t.Run("not expired early", func(t *testing.T) {
		scheduler.Advance(4 * time.Minute)
		assert.True(t, store.Restricted("bob"))
		assert.Empty(t, expired)
		current, ok := store.Lookup("bob")
		require.True(t, ok)
		assert.Equal(t, time.Minute, current.Remaining(scheduler.Now()))
	})
	t.Run("expires", func(t *testing.T) {
		scheduler.Advance(time.Minute)
		assert.False(t, store.Restricted("bob"))
		require.Len(t, expired, 1)
		assert.Equal(t, entry, expired[0])
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := store.Mute("bob", 0)
		assert.Equal(t, ErrInvalidDuration, err)
		_, err = store.Mute("", 1)
		assert.Equal(t, ErrEmptyNickname, err)
	})
}

func TestSupersededTimer(t *testing.T) {
	scheduler := NewManualScheduler(epoch)
	expired := 0
	store := NewStore("p1", scheduler, func(Entry) { expired++ })

	_, err := store.Mute("bob", 1)
	require.NoError(t, err)
	second, err := store.Mute("bob", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduler.Pending())

	t.Run("stale timer does not release the newer entry", func(t *testing.T) {
		scheduler.Advance(time.Minute)
		assert.True(t, store.Restricted("bob"))
		assert.Equal(t, 0, expired)
	})
	t.Run("generation guard", func(t *testing.T) {
		third, err := store.Mute("carol", 1)
		require.NoError(t, err)
		store.Apply(Entry{Nickname: "carol", Permanent: true, Owner: "p2", Generation: third.Generation})
		scheduler.FireAll()
		entry, ok := store.Lookup("carol")
		require.True(t, ok)
		assert.True(t, entry.Permanent)
		assert.Equal(t, "p2", entry.Owner)
		assert.False(t, store.Restricted("bob"))
		assert.Equal(t, 1, expired)
		assert.Equal(t, uint64(2), second.Generation)
	})
}

func TestBan(t *testing.T) {
	scheduler := NewManualScheduler(epoch)
	store := NewStore("p1", scheduler, nil)
	_, err := store.Mute("bob", 3)
	require.NoError(t, err)
	entry, err := store.Ban("bob")
	require.NoError(t, err)
	assert.True(t, entry.Permanent)
	assert.Equal(t, 0, scheduler.Pending())
	scheduler.Advance(time.Hour)
	assert.True(t, store.Restricted("bob"))
	assert.Equal(t, time.Duration(0), entry.Remaining(epoch))
}

func TestRelease(t *testing.T) {
	store := NewStore("p1", NewManualScheduler(epoch), nil)
	store.Apply(Entry{Nickname: "bob", Minutes: 5, Owner: "p2", Generation: 7})

	assert.False(t, store.Release("bob", "p2", 6))
	assert.False(t, store.Release("bob", "p3", 7))
	assert.True(t, store.Restricted("bob"))
	assert.True(t, store.Release("bob", "p2", 7))
	assert.False(t, store.Restricted("bob"))
	assert.False(t, store.Release("bob", "p2", 7))
}

func TestNicknames(t *testing.T) {
	store := NewStore("p1", NewManualScheduler(epoch), nil)
	store.Ban("zed")
	store.Mute("amy", 2)
	assert.Equal(t, []string{"amy", "zed"}, store.Nicknames())
	assert.Len(t, store.All(), 2)
	store.Close()
}

func TestReplicaExpiry(t *testing.T) {
	scheduler := NewManualScheduler(epoch)
	store := NewStore("p1", scheduler, nil)
	store.Apply(Entry{Nickname: "bob", Minutes: 2, Expires: epoch.Add(2 * time.Minute), Owner: "p2", Generation: 3})
	store.Apply(Entry{Nickname: "zed", Permanent: true, Owner: "p2", Generation: 4})
	assert.Equal(t, 0, scheduler.Pending())

	scheduler.Advance(time.Minute)
	assert.True(t, store.Restricted("bob"))

	t.Run("lapsed without a release", func(t *testing.T) {
		scheduler.Advance(time.Minute)
		assert.False(t, store.Restricted("bob"))
		_, ok := store.Lookup("bob")
		assert.False(t, ok)
		assert.True(t, store.Restricted("zed"))
	})
	t.Run("late release still applies", func(t *testing.T) {
		assert.True(t, store.Release("bob", "p2", 3))
	})
}

func TestManualSchedulerConcurrentStop(t *testing.T) {
	scheduler := NewManualScheduler(epoch)
	timers := []Timer{}
	for i := 0; i < 50; i++ {
		timers = append(timers, scheduler.AfterFunc(time.Duration(i)*time.Second, func() {}))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			scheduler.Advance(time.Second)
		}
	}()
	for _, timer := range timers {
		timer.Stop()
	}
	<-done
	assert.Equal(t, 0, scheduler.Pending())
}
