package polls

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNoActivePoll   = errors.New("no active poll")
	ErrUnknownOption  = errors.New("unknown poll option")
	ErrDuplicateVote  = errors.New("already voted")
	ErrInvalidOptions = errors.New("a poll needs at least one option")
)

type Tally struct {
	Count int64 `json:"count"`
}

type Poll struct {
	ID      string
	Title   string
	Options []string
	Tallies map[string]Tally
}

type poll struct {
	id      string
	title   string
	options []string
	counts  map[string]int64
	voters  map[string]struct{}
}

func (p *poll) snapshot() Poll {
	out := Poll{
		ID:      p.id,
		Title:   p.title,
		Options: append([]string(nil), p.options...),
		Tallies: make(map[string]Tally, len(p.counts)),
	}
	for option, count := range p.counts {
		out.Tallies[option] = Tally{Count: count}
	}
	return out
}

// Engine holds at most one active poll.
type Engine struct {
	mtx     sync.Mutex
	current *poll
}

func NewEngine() *Engine {
	return &Engine{}
}

// Start replaces any active poll, tallies and voter set included.
func (e *Engine) Start(id, title string, options []string) (Poll, error) {
	if len(options) == 0 {
		return Poll{}, ErrInvalidOptions
	}
	p := &poll{
		id:     id,
		title:  title,
		counts: make(map[string]int64, len(options)),
		voters: map[string]struct{}{},
	}
	for _, option := range options {
		if _, ok := p.counts[option]; ok {
			continue
		}
		p.options = append(p.options, option)
		p.counts[option] = 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.current = p
	return p.snapshot(), nil
}

// Vote records a local vote and returns the id of the poll it counted for.
func (e *Engine) Vote(voter, option string) (string, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.current == nil {
		return "", ErrNoActivePoll
	}
	return e.current.id, e.count(voter, option)
}

// ApplyVote records a replicated vote. Votes for another poll and voters
// already counted are ignored.
func (e *Engine) ApplyVote(pollID, voter, option string) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.current == nil || e.current.id != pollID {
		return false
	}
	return e.count(voter, option) == nil
}

func (e *Engine) count(voter, option string) error {
	if _, ok := e.current.counts[option]; !ok {
		return ErrUnknownOption
	}
	if _, ok := e.current.voters[voter]; ok {
		return ErrDuplicateVote
	}
	e.current.voters[voter] = struct{}{}
	e.current.counts[option]++
	return nil
}

// End closes the active poll and returns its final tallies.
func (e *Engine) End() (Poll, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.current == nil {
		return Poll{}, ErrNoActivePoll
	}
	out := e.current.snapshot()
	e.current = nil
	return out, nil
}

// ApplyEnd closes the active poll if it is pollID.
func (e *Engine) ApplyEnd(pollID string) (Poll, bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.current == nil || e.current.id != pollID {
		return Poll{}, false
	}
	out := e.current.snapshot()
	e.current = nil
	return out, true
}

func (e *Engine) Current() (Poll, bool) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.current == nil {
		return Poll{}, false
	}
	return e.current.snapshot(), true
}
