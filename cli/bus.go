package cli

import (
	"context"
	"net/http"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/network"
	"go.uber.org/zap"
)

// OpenBus connects the replication backend named in config. The gossip
// backend joins the configured peers, and the consul catalog when enabled.
func OpenBus(ctx context.Context, id string, config Config, gossip network.Configuration, logger *zap.Logger) (bus.Bus, error) {
	logger = logger.With(zap.String("bus_backend", config.Bus.Backend))
	switch strings.ToLower(config.Bus.Backend) {
	case "local":
		return bus.NewLocalNetwork().Attach(), nil
	case "redis":
		return bus.NewRedis(bus.RedisConfig{
			Address:    config.Bus.Redis.Address,
			Channel:    config.Bus.Channel,
			Password:   config.Bus.Redis.Password,
			DB:         config.Bus.Redis.DB,
			MaxRetries: config.Bus.Retries,
		}, logger)
	case "nats":
		return bus.NewNATS(bus.NATSConfig{
			URL:        config.Bus.NATS.URL,
			Channel:    config.Bus.Channel,
			Name:       id,
			MaxRetries: config.Bus.Retries,
		}, logger)
	case "zmq":
		return bus.NewZMQ(bus.ZMQConfig{
			Channel:           config.Bus.Channel,
			PublishEndpoint:   config.Bus.ZMQ.Publish,
			SubscribeEndpoint: config.Bus.ZMQ.Subscribe,
		}, logger)
	case "gossip":
		g, err := bus.NewGossip(bus.GossipConfig{
			ID:               id,
			BindAddress:      gossip.BindAddress,
			BindPort:         gossip.BindPort,
			AdvertiseAddress: gossip.AdvertisedAddress,
			AdvertisePort:    gossip.AdvertisedPort,
		}, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to start gossip")
		}
		logger.Info("gossip started", zap.String("gossip_address", gossip.Describe()))
		if len(config.Join) > 0 {
			if err := g.Join(config.Join); err != nil {
				logger.Warn("failed to join gossip peers", zap.Strings("peers", config.Join), zap.Error(err))
			}
		}
		if config.Consul.Enabled {
			consulConfig := consul.DefaultConfig()
			consulConfig.HttpClient = http.DefaultClient
			api, err := consul.NewClient(consulConfig)
			if err != nil {
				g.Close()
				return nil, errors.Wrap(err, "failed to connect to consul")
			}
			go JoinConsulPeers(ctx, api, config.Consul.Service, gossip.AdvertisedAddress, gossip.AdvertisedPort, g, logger)
		}
		return g, nil
	}
	return nil, errors.Errorf("unknown bus backend %q", config.Bus.Backend)
}
