package cli

import (
	"context"
	"fmt"
	"time"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type Joiner interface {
	Join(peers []string) error
}

// JoinConsulPeers watches the health of service in the consul catalog and
// joins the first non-critical peers listed next to this process.
func JoinConsulPeers(ctx context.Context, api *consul.Client, service string, selfAddress string, selfPort int, mesh Joiner, logger *zap.Logger) error {
	var index uint64
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		services, meta, err := api.Health().Service(
			service,
			"",
			false,
			(&consul.QueryOptions{
				WaitIndex: index,
				WaitTime:  15 * time.Second,
			}).WithContext(ctx),
		)
		if err != nil {
			logger.Warn("failed to query consul", zap.String("consul_service", service), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}
		index = meta.LastIndex
		peers := discoveredPeers(services, selfAddress, selfPort, logger)
		if len(peers) > 0 {
			if err := mesh.Join(peers); err == nil {
				logger.Info("joined gossip peers from consul", zap.Strings("peers", peers))
				return nil
			}
		}
	}
}

func discoveredPeers(services []*consul.ServiceEntry, selfAddress string, selfPort int, logger *zap.Logger) []string {
	peers := []string{}
	for _, service := range services {
		logger.Debug("discovered node", zap.String("node_address", service.Service.Address), zap.Int("node_port", service.Service.Port), zap.String("node_health", service.Checks.AggregatedStatus()))
		if service.Checks.AggregatedStatus() == consul.HealthCritical {
			continue
		}
		if service.Service.Address == selfAddress &&
			service.Service.Port == selfPort {
			continue
		}
		peers = append(peers, fmt.Sprintf("%s:%d", service.Service.Address, service.Service.Port))
	}
	return peers
}
