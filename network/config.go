package network

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration is where a listener binds and what address peers should use
// to reach it.
type Configuration struct {
	Name              string
	AdvertisedAddress string
	AdvertisedPort    int
	BindAddress       string
	BindPort          int
}

func randomFreePort(host string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:0", host))
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// localPrivateHost returns the first IPv4 address of an up, non-loopback
// interface, or the loopback address when there is none.
func localPrivateHost() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, v := range ifaces {
		if v.Flags&net.FlagLoopback == net.FlagLoopback || v.Flags&net.FlagUp != net.FlagUp {
			continue
		}
		if len(v.HardwareAddr.String()) == 0 {
			continue
		}
		addresses, _ := v.Addrs()
		if len(addresses) == 0 {
			continue
		}
		if ipnet, ok := addresses[0].(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return "127.0.0.1"
}

func advertisedAddressFlagName(name string) string {
	return fmt.Sprintf("%s-advertised-address", name)
}
func advertisedPortFlagName(name string) string {
	return fmt.Sprintf("%s-advertised-port", name)
}
func bindAddressFlagName(name string) string {
	return fmt.Sprintf("%s-bind-address", name)
}
func bindPortFlagName(name string) string {
	return fmt.Sprintf("%s-bind-port", name)
}

func (c Configuration) Describe() string {
	return fmt.Sprintf("%s is running on %s:%d and exposed on %s:%d",
		c.Name,
		c.BindAddress, c.BindPort,
		c.AdvertisedAddress, c.AdvertisedPort,
	)
}

// ConfigurationFromFlags reads the flags registered by RegisterFlagsForService.
// A zero bind port is replaced by a free one.
func ConfigurationFromFlags(v *viper.Viper, name string) (Configuration, error) {
	config := Configuration{
		Name:              name,
		AdvertisedAddress: v.GetString(advertisedAddressFlagName(name)),
		AdvertisedPort:    v.GetInt(advertisedPortFlagName(name)),
		BindAddress:       v.GetString(bindAddressFlagName(name)),
		BindPort:          v.GetInt(bindPortFlagName(name)),
	}
	if len(config.BindAddress) == 0 {
		config.BindAddress = "0.0.0.0"
	}
	if len(config.AdvertisedAddress) == 0 {
		config.AdvertisedAddress = config.BindAddress
	}
	if config.BindPort == 0 {
		randomPort, err := randomFreePort(config.BindAddress)
		if err != nil {
			return Configuration{}, errors.Wrapf(err, "failed to allocate a port for %s", name)
		}
		config.BindPort = randomPort
	}
	if config.AdvertisedPort == 0 {
		config.AdvertisedPort = config.BindPort
	}
	return config, config.Validate()
}

func (c Configuration) Validate() error {
	if net.ParseIP(c.BindAddress) == nil {
		return errors.Errorf("invalid bind address specified for %s: %q", c.Name, c.BindAddress)
	}
	if net.ParseIP(c.AdvertisedAddress) == nil {
		return errors.Errorf("invalid advertised address specified for %s: %q", c.Name, c.AdvertisedAddress)
	}
	if c.AdvertisedPort < 1024 || c.AdvertisedPort > 65535 {
		return errors.Errorf("invalid advertised port specified for %s: %d", c.Name, c.AdvertisedPort)
	}
	if c.BindPort < 1024 || c.BindPort > 65535 {
		return errors.Errorf("invalid bind port specified for %s: %d", c.Name, c.BindPort)
	}
	return nil
}

func RegisterFlagsForService(cmd *cobra.Command, config *viper.Viper, name string, defaultPort int) {
	long := bindPortFlagName(name)
	longAddr := bindAddressFlagName(name)
	advLong := advertisedPortFlagName(name)
	advLongAddr := advertisedAddressFlagName(name)

	defaultAddr := localPrivateHost()

	cmd.Flags().IntP(long, "", defaultPort, fmt.Sprintf("Start %s listener on this port", name))
	config.BindPFlag(long, cmd.Flags().Lookup(long))
	config.BindEnv(long, fmt.Sprintf("NOMAD_PORT_%s", name))

	cmd.Flags().StringP(longAddr, "", "0.0.0.0", fmt.Sprintf("Start %s listener on this address", name))
	config.BindPFlag(longAddr, cmd.Flags().Lookup(longAddr))

	cmd.Flags().StringP(advLongAddr, "", defaultAddr, fmt.Sprintf("Advertise %s listener on this address", name))
	config.BindPFlag(advLongAddr, cmd.Flags().Lookup(advLongAddr))
	config.BindEnv(advLongAddr, fmt.Sprintf("NOMAD_IP_%s", name))

	cmd.Flags().IntP(advLong, "", 0, fmt.Sprintf("Advertise %s listener on this port", name))
	config.BindPFlag(advLong, cmd.Flags().Lookup(advLong))
	config.BindEnv(advLong, fmt.Sprintf("NOMAD_HOST_PORT_%s", name))
}
