package bus

import (
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type NATSConfig struct {
	URL        string
	Channel    string
	Name       string
	MaxRetries uint64
}

type NATS struct {
	channel string
	conn    *nats.Conn
	sub     *nats.Subscription
	logger  *zap.Logger
	subs    *subscribers
}

func NewNATS(config NATSConfig, logger *zap.Logger) (*NATS, error) {
	n := &NATS{
		channel: channelOrDefault(config.Channel),
		logger:  logger,
		subs:    newSubscribers(),
	}
	err := connectWithRetry(logger, "nats", config.MaxRetries, func() error {
		conn, err := nats.Connect(config.URL,
			nats.Name(config.Name),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("disconnected from nats", zap.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("reconnected to nats", zap.String("nats_url", c.ConnectedUrl()))
			}),
		)
		if err != nil {
			return err
		}
		n.conn = conn
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to nats")
	}
	n.sub, err = n.conn.Subscribe(n.channel, func(msg *nats.Msg) {
		n.subs.emit(msg.Data)
	})
	if err != nil {
		n.conn.Close()
		return nil, errors.Wrap(err, "failed to subscribe to nats subject")
	}
	return n, nil
}

func (n *NATS) Publish(payload []byte) error {
	return n.conn.Publish(n.channel, payload)
}

func (n *NATS) Subscribe(handler Handler) (func(), error) {
	return n.subs.add(handler), nil
}

func (n *NATS) Health() string {
	switch n.conn.Status() {
	case nats.CONNECTED:
		return "ok"
	case nats.RECONNECTING, nats.CONNECTING:
		return "warning"
	default:
		return "critical"
	}
}

func (n *NATS) Close() error {
	if err := n.sub.Unsubscribe(); err != nil {
		n.logger.Warn("failed to unsubscribe from nats subject", zap.Error(err))
	}
	n.conn.Close()
	return nil
}
