package cli

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/vx-labs/chat-hub/bus"
	"github.com/vx-labs/chat-hub/filter"
	"github.com/vx-labs/chat-hub/hub"
)

const envPrefix = "CHATHUB"

type Config struct {
	Auth        AuthConfig        `mapstructure:"auth"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Listener    ListenerConfig    `mapstructure:"listener"`
	Health      HealthConfig      `mapstructure:"health"`
	Bus         BusConfig         `mapstructure:"bus"`
	Join        []string          `mapstructure:"join"`
	Consul      ConsulConfig      `mapstructure:"consul"`
	Replication ReplicationConfig `mapstructure:"replication"`
}

type AuthConfig struct {
	IDSalt   string `mapstructure:"id_salt"`
	NickSalt string `mapstructure:"nick_salt"`
	Secret   string `mapstructure:"secret"`
}

type ChatConfig struct {
	MaxLength   int    `mapstructure:"max_length"`
	Placeholder string `mapstructure:"placeholder"`
	Wordlist    string `mapstructure:"wordlist"`
}

type PresenceConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type ListenerConfig struct {
	WSPort    int    `mapstructure:"ws_port"`
	Path      string `mapstructure:"path"`
	QueueSize int    `mapstructure:"queue_size"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

type BusConfig struct {
	Backend string         `mapstructure:"backend"`
	Channel string         `mapstructure:"channel"`
	Redis   RedisBusConfig `mapstructure:"redis"`
	NATS    NATSBusConfig  `mapstructure:"nats"`
	ZMQ     ZMQBusConfig   `mapstructure:"zmq"`
	Retries uint64         `mapstructure:"max_retries"`
}

type RedisBusConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSBusConfig struct {
	URL string `mapstructure:"url"`
}

type ZMQBusConfig struct {
	Publish   string `mapstructure:"publish"`
	Subscribe string `mapstructure:"subscribe"`
}

type ConsulConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

type ReplicationConfig struct {
	DedupeSize int `mapstructure:"dedupe_size"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("auth.id_salt", "")
	v.SetDefault("auth.nick_salt", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("chat.max_length", filter.DefaultMaxLength)
	v.SetDefault("chat.placeholder", filter.DefaultPlaceholder)
	v.SetDefault("chat.wordlist", "")
	v.SetDefault("presence.interval", 7500*time.Millisecond)
	v.SetDefault("listener.ws_port", 1029)
	v.SetDefault("listener.path", "/chat")
	v.SetDefault("listener.queue_size", 64)
	v.SetDefault("health.port", 9000)
	v.SetDefault("bus.backend", "gossip")
	v.SetDefault("bus.channel", bus.Channel)
	v.SetDefault("bus.max_retries", 10)
	v.SetDefault("bus.redis.address", "localhost:6379")
	v.SetDefault("bus.redis.password", "")
	v.SetDefault("bus.redis.db", 0)
	v.SetDefault("bus.nats.url", "nats://localhost:4222")
	v.SetDefault("bus.zmq.publish", "tcp://localhost:5559")
	v.SetDefault("bus.zmq.subscribe", "tcp://localhost:5560")
	v.SetDefault("join", []string{})
	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.service", "chathub")
	v.SetDefault("replication.dedupe_size", 4096)
}

// LoadConfig reads defaults, the optional config file, CHATHUB_* variables and
// bound flags, in increasing order of precedence.
func LoadConfig(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}
	config := Config{}
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid config")
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.Auth.IDSalt == "" || c.Auth.NickSalt == "" {
		return errors.New("auth.id_salt and auth.nick_salt must be set")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret must be set")
	}
	if c.Chat.MaxLength < 1 {
		return errors.New("chat.max_length must be positive")
	}
	if c.Listener.WSPort < 0 || c.Listener.WSPort > 65535 {
		return errors.New("invalid listener.ws_port")
	}
	if !strings.HasPrefix(c.Listener.Path, "/") {
		return errors.New("listener.path must start with /")
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return errors.New("invalid health.port")
	}
	if c.Bus.Channel == "" {
		return errors.New("bus.channel must be set")
	}
	switch strings.ToLower(c.Bus.Backend) {
	case "gossip", "local":
	case "redis":
		if c.Bus.Redis.Address == "" {
			return errors.New("bus.redis.address must be set for the redis backend")
		}
	case "nats":
		if c.Bus.NATS.URL == "" {
			return errors.New("bus.nats.url must be set for the nats backend")
		}
	case "zmq":
		if c.Bus.ZMQ.Publish == "" || c.Bus.ZMQ.Subscribe == "" {
			return errors.New("bus.zmq.publish and bus.zmq.subscribe must be set for the zmq backend")
		}
	default:
		return errors.Errorf("invalid bus backend %q: must be one of gossip, redis, nats, zmq, local", c.Bus.Backend)
	}
	if c.Consul.Enabled && c.Consul.Service == "" {
		return errors.New("consul.service must be set when consul is enabled")
	}
	return nil
}

// HubConfig translates the loaded settings, reading the word list file if one
// is configured.
func (c Config) HubConfig() (hub.Config, error) {
	out := hub.Config{
		IDSalt:           c.Auth.IDSalt,
		NickSalt:         c.Auth.NickSalt,
		Secret:           c.Auth.Secret,
		Placeholder:      c.Chat.Placeholder,
		MaxLength:        c.Chat.MaxLength,
		PresenceInterval: c.Presence.Interval,
		DedupeSize:       c.Replication.DedupeSize,
	}
	if c.Chat.Wordlist != "" {
		words, err := filter.Load(c.Chat.Wordlist)
		if err != nil {
			return hub.Config{}, errors.Wrap(err, "failed to load word list")
		}
		out.Words = words
	}
	return out, nil
}
