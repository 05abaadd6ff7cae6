package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	iradix "github.com/hashicorp/go-immutable-radix"
)

type subscribers struct {
	state atomic.Pointer[iradix.Tree]
}

func newSubscribers() *subscribers {
	s := &subscribers{}
	s.state.Store(iradix.New())
	return s
}

func (s *subscribers) emit(payload []byte) {
	s.state.Load().Root().Walk(func(k []byte, v interface{}) bool {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		v.(Handler)(buf)
		return false
	})
}

func (s *subscribers) len() int {
	return s.state.Load().Len()
}

func (s *subscribers) add(handler Handler) func() {
	id := []byte(uuid.New().String())
	for {
		old := s.state.Load()
		tree, _, _ := old.Insert(id, handler)
		if s.state.CompareAndSwap(old, tree) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for {
				old := s.state.Load()
				tree, _, _ := old.Delete(id)
				if s.state.CompareAndSwap(old, tree) {
					return
				}
			}
		})
	}
}
