package moderation

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidDuration = errors.New("mute duration must be at least one minute")
	ErrEmptyNickname   = errors.New("empty nickname")
)

// Entry restricts a nickname. Owner and Generation identify the instance: a
// later entry for the same nickname replaces it, and only a release carrying
// the same identity may remove it.
type Entry struct {
	Nickname   string
	Minutes    int
	Permanent  bool
	Expires    time.Time
	Owner      string
	Generation uint64
}

func (e Entry) Same(owner string, generation uint64) bool {
	return e.Owner == owner && e.Generation == generation
}

func (e Entry) expired(now time.Time) bool {
	return !e.Permanent && !e.Expires.IsZero() && !now.Before(e.Expires)
}

// Remaining returns how long the restriction still holds. Permanent entries
// return zero.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.Permanent || e.Expires.IsZero() {
		return 0
	}
	if d := e.Expires.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Store holds restriction entries. Timers are only armed for entries created
// locally; replicated entries are released by the process that created them.
type Store struct {
	mtx        sync.Mutex
	id         string
	generation uint64
	entries    map[string]Entry
	timers     map[string]Timer
	scheduler  Scheduler
	onExpire   func(Entry)
}

func NewStore(id string, scheduler Scheduler, onExpire func(Entry)) *Store {
	if scheduler == nil {
		scheduler = RealScheduler()
	}
	return &Store{
		id:        id,
		entries:   map[string]Entry{},
		timers:    map[string]Timer{},
		scheduler: scheduler,
		onExpire:  onExpire,
	}
}

// Mute restricts nickname for the given minutes and arms the expiry timer.
func (s *Store) Mute(nickname string, minutes int) (Entry, error) {
	if nickname == "" {
		return Entry{}, ErrEmptyNickname
	}
	if minutes < 1 {
		return Entry{}, ErrInvalidDuration
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	entry := s.next(nickname)
	entry.Minutes = minutes
	entry.Expires = s.scheduler.Now().Add(time.Duration(minutes) * time.Minute)
	s.replace(entry)
	gen := entry.Generation
	s.timers[nickname] = s.scheduler.AfterFunc(time.Duration(minutes)*time.Minute, func() {
		s.expire(nickname, gen)
	})
	return entry, nil
}

// Ban restricts nickname permanently.
func (s *Store) Ban(nickname string) (Entry, error) {
	if nickname == "" {
		return Entry{}, ErrEmptyNickname
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	entry := s.next(nickname)
	entry.Permanent = true
	s.replace(entry)
	return entry, nil
}

// Apply installs a replicated entry, superseding whatever is held for the
// nickname, including a locally armed timer.
func (s *Store) Apply(entry Entry) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.replace(entry)
}

// Release removes the entry for nickname if it is the instance identified by
// owner and generation.
func (s *Store) Release(nickname, owner string, generation uint64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	current, ok := s.entries[nickname]
	if !ok || !current.Same(owner, generation) {
		return false
	}
	s.remove(nickname)
	return true
}

// Lookup returns the entry restricting nickname. A temporary entry past its
// expiry is reported absent even before its release arrives, so a replica
// whose origin died does not hold it forever.
func (s *Store) Lookup(nickname string) (Entry, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	entry, ok := s.entries[nickname]
	if !ok || entry.expired(s.scheduler.Now()) {
		return Entry{}, false
	}
	return entry, true
}

func (s *Store) Restricted(nickname string) bool {
	_, ok := s.Lookup(nickname)
	return ok
}

// Nicknames returns restricted nicknames in lexical order.
func (s *Store) Nicknames() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]string, 0, len(s.entries))
	for nickname := range s.entries {
		out = append(out, nickname)
	}
	sort.Strings(out)
	return out
}

func (s *Store) All() []Entry {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out
}

// Close stops every armed timer.
func (s *Store) Close() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for nickname, timer := range s.timers {
		timer.Stop()
		delete(s.timers, nickname)
	}
}

func (s *Store) expire(nickname string, generation uint64) {
	s.mtx.Lock()
	current, ok := s.entries[nickname]
	if !ok || !current.Same(s.id, generation) {
		s.mtx.Unlock()
		return
	}
	s.remove(nickname)
	s.mtx.Unlock()
	if s.onExpire != nil {
		s.onExpire(current)
	}
}

func (s *Store) next(nickname string) Entry {
	s.generation++
	return Entry{
		Nickname:   nickname,
		Owner:      s.id,
		Generation: s.generation,
	}
}

func (s *Store) replace(entry Entry) {
	s.stopTimer(entry.Nickname)
	s.entries[entry.Nickname] = entry
}

func (s *Store) remove(nickname string) {
	s.stopTimer(nickname)
	delete(s.entries, nickname)
}

func (s *Store) stopTimer(nickname string) {
	if timer, ok := s.timers[nickname]; ok {
		timer.Stop()
		delete(s.timers, nickname)
	}
}
