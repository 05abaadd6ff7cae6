package bus

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Channel is the topic every hub process publishes to and subscribes on.
const Channel = "chat-server"

var (
	ErrClosed = errors.New("bus closed")
)

// Handler receives raw envelopes. Implementations may reuse nothing from the
// slice after the call returns.
type Handler func(payload []byte)

// Bus is a best-effort, fire-and-forget broadcast medium shared by every hub
// process. Publish never blocks on the network.
type Bus interface {
	Publish(payload []byte) error
	Subscribe(handler Handler) (func(), error)
	Health() string
	Close() error
}

// PeerWatcher is implemented by backends that notice when a peer process
// leaves. Backends without membership never report departures.
type PeerWatcher interface {
	OnPeerLeft(handler func(peer string))
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return Channel
	}
	return channel
}

func connectWithRetry(logger *zap.Logger, name string, maxRetries uint64, f func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 5 * time.Second
	return backoff.RetryNotify(f, backoff.WithMaxRetries(policy, maxRetries), func(err error, next time.Duration) {
		logger.Warn("failed to connect to bus", zap.String("bus_backend", name), zap.Duration("retry_in", next), zap.Error(err))
	})
}
