package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/cli"
	eventsCommand "github.com/vx-labs/chat-hub/events/cobra"
	"github.com/vx-labs/chat-hub/hub"
	"github.com/vx-labs/chat-hub/network"
	"github.com/vx-labs/chat-hub/transport"
	"go.uber.org/zap"
)

const gossipService = "gossip"

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		<-sigc
		cancel()
	}()
	return ctx
}

func loadConfig(config *viper.Viper, logger *zap.Logger) cli.Config {
	loaded, err := cli.LoadConfig(config, config.GetString("config"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	return loaded
}

func Serve(ctx context.Context, config *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "run a chat hub process",
		PreRun: func(c *cobra.Command, _ []string) {
			config.BindPFlag("bus.backend", c.Flags().Lookup("bus"))
			config.BindPFlag("listener.ws_port", c.Flags().Lookup("ws-port"))
			config.BindPFlag("health.port", c.Flags().Lookup("health-port"))
			config.BindPFlag("join", c.Flags().Lookup("join"))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			app := cli.Bootstrap()
			logger := app.Logger
			loaded := loadConfig(config, logger)
			gossipConfig, err := network.ConfigurationFromFlags(config, gossipService)
			if err != nil {
				logger.Fatal("invalid gossip configuration", zap.Error(err))
			}
			b, err := cli.OpenBus(ctx, app.ID, loaded, gossipConfig, logger)
			if err != nil {
				logger.Fatal("failed to open bus", zap.Error(err))
			}
			hubConfig, err := loaded.HubConfig()
			if err != nil {
				logger.Fatal("invalid hub configuration", zap.Error(err))
			}
			h, err := hub.New(app.ID, b, hubConfig, logger, hub.WithAuditLogger(app.Audit))
			if err != nil {
				logger.Fatal("failed to start hub", zap.Error(err))
			}
			server, err := transport.NewWSTransport(transport.Config{
				Port:      loaded.Listener.WSPort,
				Path:      loaded.Listener.Path,
				QueueSize: loaded.Listener.QueueSize,
			}, logger, h.Serve)
			if err != nil {
				logger.Fatal("failed to start listener", zap.Error(err))
			}
			health := cli.ServeHealth(logger, loaded.Health.Port, h)
			logger.Info("hub started",
				zap.String("bus_backend", loaded.Bus.Backend),
				zap.Int("ws_port", server.Port()),
				zap.String("ws_path", loaded.Listener.Path),
				zap.Int("health_port", loaded.Health.Port),
			)
			app.Run(func() {
				server.Close()
				h.Close()
				b.Close()
				health.Close()
			})
		},
	}
	c.Flags().StringP("bus", "b", "gossip", "Replication bus backend (gossip, redis, nats, zmq, local)")
	c.Flags().IntP("ws-port", "p", 1029, "Serve websocket clients on this port")
	c.Flags().IntP("health-port", "", 9000, "Serve /health and /metrics on this port")
	c.Flags().StringSliceP("join", "j", []string{}, "Join these gossip peers")
	network.RegisterFlagsForService(c, config, gossipService, 3500)
	return c
}

func Bus(ctx context.Context, config *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use: "bus",
	}
	proxy := &cobra.Command{
		Use:   "proxy",
		Short: "run the ZeroMQ forwarder used by the zmq bus backend",
		PreRun: func(c *cobra.Command, _ []string) {
			config.BindPFlag("frontend", c.Flags().Lookup("frontend"))
			config.BindPFlag("backend", c.Flags().Lookup("backend"))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			app := cli.Bootstrap()
			if err := bus.RunProxy(config.GetString("frontend"), config.GetString("backend"), app.Logger); err != nil {
				app.Logger.Fatal("bus proxy failed", zap.Error(err))
			}
		},
	}
	proxy.Flags().StringP("frontend", "", "tcp://*:5559", "Bind the publishers side on this endpoint")
	proxy.Flags().StringP("backend", "", "tcp://*:5560", "Bind the subscribers side on this endpoint")
	c.AddCommand(proxy)
	return c
}

func main() {
	config := viper.New()
	ctx := signalContext()
	rootCmd := &cobra.Command{
		Use: "chathub",
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Read configuration from this file")
	config.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(Serve(ctx, config))
	rootCmd.AddCommand(Bus(ctx, config))
	eventsCommand.Register(ctx, rootCmd, config, func(ctx context.Context) (bus.Bus, error) {
		app := cli.Bootstrap()
		loaded := loadConfig(config, app.Logger)
		// tail joins the gossip as an extra member on a random port
		gossipConfig, err := network.ConfigurationFromFlags(config, gossipService)
		if err != nil {
			return nil, err
		}
		return cli.OpenBus(ctx, app.ID, loaded, gossipConfig, app.Logger)
	})
	rootCmd.Execute()
}
