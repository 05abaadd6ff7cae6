package bus

import (
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ZMQConfig points at a forwarder: events are published to its XSUB side and
// received from its XPUB side.
type ZMQConfig struct {
	Channel           string
	PublishEndpoint   string
	SubscribeEndpoint string
}

type ZMQ struct {
	channel string
	mtx     sync.Mutex
	pub     *zmq4.Socket
	logger  *zap.Logger
	subs    *subscribers
	quit    chan struct{}
	done    chan struct{}
}

func NewZMQ(config ZMQConfig, logger *zap.Logger) (*ZMQ, error) {
	pub, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create publish socket")
	}
	if err := pub.Connect(config.PublishEndpoint); err != nil {
		pub.Close()
		return nil, errors.Wrap(err, "failed to connect publish socket")
	}
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		pub.Close()
		return nil, errors.Wrap(err, "failed to create subscribe socket")
	}
	if err := sub.Connect(config.SubscribeEndpoint); err != nil {
		pub.Close()
		sub.Close()
		return nil, errors.Wrap(err, "failed to connect subscribe socket")
	}
	channel := channelOrDefault(config.Channel)
	if err := sub.SetSubscribe(channel); err != nil {
		pub.Close()
		sub.Close()
		return nil, errors.Wrap(err, "failed to subscribe")
	}
	sub.SetRcvtimeo(500 * time.Millisecond)
	z := &ZMQ{
		channel: channel,
		pub:     pub,
		logger:  logger,
		subs:    newSubscribers(),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go z.receiveLoop(sub)
	return z, nil
}

func (z *ZMQ) receiveLoop(sub *zmq4.Socket) {
	defer close(z.done)
	defer sub.Close()
	for {
		select {
		case <-z.quit:
			return
		default:
		}
		parts, err := sub.RecvMessageBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			z.logger.Warn("failed to receive event", zap.Error(err))
			continue
		}
		if len(parts) != 2 {
			continue
		}
		z.subs.emit(parts[1])
	}
}

func (z *ZMQ) Publish(payload []byte) error {
	z.mtx.Lock()
	defer z.mtx.Unlock()
	if z.pub == nil {
		return ErrClosed
	}
	_, err := z.pub.SendMessageDontwait(z.channel, payload)
	return err
}

func (z *ZMQ) Subscribe(handler Handler) (func(), error) {
	return z.subs.add(handler), nil
}

func (z *ZMQ) Health() string {
	return "ok"
}

func (z *ZMQ) Close() error {
	z.mtx.Lock()
	if z.pub == nil {
		z.mtx.Unlock()
		return nil
	}
	err := z.pub.Close()
	z.pub = nil
	z.mtx.Unlock()
	close(z.quit)
	<-z.done
	return err
}

// RunProxy binds a forwarder between hub publishers and subscribers. It blocks
// until the sockets are closed.
func RunProxy(frontend, backend string, logger *zap.Logger) error {
	xsub, err := zmq4.NewSocket(zmq4.XSUB)
	if err != nil {
		return err
	}
	defer xsub.Close()
	if err := xsub.Bind(frontend); err != nil {
		return errors.Wrapf(err, "failed to bind %s", frontend)
	}
	xpub, err := zmq4.NewSocket(zmq4.XPUB)
	if err != nil {
		return err
	}
	defer xpub.Close()
	if err := xpub.Bind(backend); err != nil {
		return errors.Wrapf(err, "failed to bind %s", backend)
	}
	logger.Info("bus proxy started", zap.String("frontend", frontend), zap.String("backend", backend))
	return zmq4.Proxy(xsub, xpub, nil)
}
