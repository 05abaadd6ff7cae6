package bus

import (
	"sync"
)

// LocalNetwork is an in-process medium. Every Bus attached to it receives
// what any of them publishes, synchronously on the publisher goroutine.
type LocalNetwork struct {
	subs    *subscribers
	mtx     sync.Mutex
	onLeave []func(peer string)
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{subs: newSubscribers()}
}

// Attach returns a new Bus connected to the network.
func (n *LocalNetwork) Attach() *Local {
	return &Local{network: n}
}

// Leave reports peer as departed to every attached Bus.
func (n *LocalNetwork) Leave(peer string) {
	n.mtx.Lock()
	handlers := make([]func(string), len(n.onLeave))
	copy(handlers, n.onLeave)
	n.mtx.Unlock()
	for _, handler := range handlers {
		handler(peer)
	}
}

type Local struct {
	network *LocalNetwork
	mtx     sync.Mutex
	cancels []func()
	closed  bool
}

func (l *Local) Publish(payload []byte) error {
	l.mtx.Lock()
	closed := l.closed
	l.mtx.Unlock()
	if closed {
		return ErrClosed
	}
	l.network.subs.emit(payload)
	return nil
}

func (l *Local) Subscribe(handler Handler) (func(), error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	cancel := l.network.subs.add(handler)
	l.cancels = append(l.cancels, cancel)
	return cancel, nil
}

func (l *Local) Health() string {
	return "ok"
}

func (l *Local) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, cancel := range l.cancels {
		cancel()
	}
	return nil
}

func (l *Local) OnPeerLeft(handler func(peer string)) {
	l.network.mtx.Lock()
	defer l.network.mtx.Unlock()
	l.network.onLeave = append(l.network.onLeave, func(peer string) {
		l.mtx.Lock()
		closed := l.closed
		l.mtx.Unlock()
		if !closed {
			handler(peer)
		}
	})
}
