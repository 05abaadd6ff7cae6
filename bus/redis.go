package bus

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrOutboundQueueFull = errors.New("bus outbound queue full")

type RedisConfig struct {
	Address    string
	Channel    string
	Password   string
	DB         int
	QueueSize  int
	MaxRetries uint64
}

type Redis struct {
	channel  string
	client   *redis.Client
	pubsub   *redis.PubSub
	logger   *zap.Logger
	subs     *subscribers
	outbound chan []byte
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRedis(config RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	err := connectWithRetry(logger, "redis", config.MaxRetries, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	channel := channelOrDefault(config.Channel)
	r := &Redis{
		channel:  channel,
		client:   client,
		pubsub:   client.Subscribe(ctx, channel),
		logger:   logger,
		subs:     newSubscribers(),
		outbound: make(chan []byte, config.QueueSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go r.publishLoop(ctx)
	go r.receiveLoop()
	return r, nil
}

func (r *Redis) publishLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.outbound:
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
				r.logger.Warn("failed to publish event", zap.Error(err))
			}
		}
	}
}

func (r *Redis) receiveLoop() {
	for msg := range r.pubsub.Channel() {
		r.subs.emit([]byte(msg.Payload))
	}
}

func (r *Redis) Publish(payload []byte) error {
	select {
	case r.outbound <- payload:
		return nil
	default:
		return ErrOutboundQueueFull
	}
}

func (r *Redis) Subscribe(handler Handler) (func(), error) {
	return r.subs.add(handler), nil
}

func (r *Redis) Health() string {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return "critical"
	}
	if len(r.outbound) > cap(r.outbound)/2 {
		return "warning"
	}
	return "ok"
}

func (r *Redis) Close() error {
	r.cancel()
	<-r.done
	r.pubsub.Close()
	return r.client.Close()
}
