package notices

import (
	"sort"
	"sync"
)

type Notice struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// entry keeps the last insert and delete times of a key so replicated
// operations converge whatever order they are delivered in.
type entry struct {
	message     string
	lastAdded   int64
	lastDeleted int64
}

func (e entry) added() bool {
	return e.lastAdded > 0 && e.lastAdded > e.lastDeleted
}

func (e entry) lastUpdate() int64 {
	if e.lastAdded > e.lastDeleted {
		return e.lastAdded
	}
	return e.lastDeleted
}

// Board is a keyed set of pinned messages. Every operation carries its
// timestamp; an operation older than the last one seen for its key is ignored.
type Board struct {
	mtx     sync.RWMutex
	entries map[string]entry
}

func NewBoard() *Board {
	return &Board{entries: map[string]entry{}}
}

// Insert applies a replicated insert stamped at. It reports whether the
// board changed.
func (b *Board) Insert(key, message string, at int64) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	current := b.entries[key]
	if at <= current.lastUpdate() {
		return false
	}
	current.message = message
	current.lastAdded = at
	b.entries[key] = current
	return true
}

// Set writes a locally issued insert. It always wins over what the board
// holds: the returned stamp is now, or just after the key's last update when
// a peer with a faster clock wrote it.
func (b *Board) Set(key, message string, now int64) int64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	current := b.entries[key]
	at := stamp(current, now)
	current.message = message
	current.lastAdded = at
	b.entries[key] = current
	return at
}

// Remove writes a locally issued delete, stamped like Set. It reports whether
// a visible notice was removed.
func (b *Board) Remove(key string, now int64) (int64, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	current := b.entries[key]
	at := stamp(current, now)
	visible := current.added()
	current.message = ""
	current.lastDeleted = at
	b.entries[key] = current
	return at, visible
}

func stamp(current entry, now int64) int64 {
	if last := current.lastUpdate(); now <= last {
		return last + 1
	}
	return now
}

// Delete removes key as of at and reports whether a visible notice was
// removed. The tombstone is kept until GC.
func (b *Board) Delete(key string, at int64) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	current, ok := b.entries[key]
	if ok && at <= current.lastUpdate() {
		return false
	}
	visible := current.added()
	current.message = ""
	current.lastDeleted = at
	b.entries[key] = current
	return visible
}

func (b *Board) Get(key string) (string, bool) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	current, ok := b.entries[key]
	if !ok || !current.added() {
		return "", false
	}
	return current.message, true
}

// All returns the visible notices ordered by key.
func (b *Board) All() []Notice {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	out := make([]Notice, 0, len(b.entries))
	for key, current := range b.entries {
		if current.added() {
			out = append(out, Notice{Key: key, Message: current.message})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GC drops tombstones deleted before limit and returns how many were dropped.
func (b *Board) GC(limit int64) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	count := 0
	for key, current := range b.entries {
		if !current.added() && current.lastDeleted < limit {
			delete(b.entries, key)
			count++
		}
	}
	return count
}
