package routerd

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/p4net/routerd/internal/logging"
)

type Config config
type config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Device is the forwarding device this daemon controls.
	Device DeviceConfig `yaml:"device"`
	// Pipeline points at the initial pipeline configuration.
	Pipeline PipelineConfig `yaml:"pipeline"`
	// Interfaces and Routes are applied once at startup, after the device
	// is assigned.
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Routes     []RouteConfig     `yaml:"routes"`
}

type DeviceConfig struct {
	// Endpoint of the device's table-programming service.
	Endpoint string `yaml:"endpoint"`
	// ID is the device identifier used in every call.
	ID uint64 `yaml:"id"`
	// MaxMessageSize bounds inbound protocol messages.
	MaxMessageSize datasize.ByteSize `yaml:"max_message_size"`
	// CallTimeout bounds every unary device call.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// AssignTimeout bounds the initial assign retry loop.
	AssignTimeout time.Duration `yaml:"assign_timeout"`

	// Extras passed verbatim to the device at assign time.
	Port          string `yaml:"port"`
	Notifications string `yaml:"notifications"`
	CPUIface      string `yaml:"cpu_iface"`
}

// Extras returns the assign-time key-value configuration.
func (m *DeviceConfig) Extras() map[string]string {
	return map[string]string{
		"port":          m.Port,
		"notifications": m.Notifications,
		"cpu_iface":     m.CPUIface,
	}
}

type PipelineConfig struct {
	// ConfigPath is the path to the raw pipeline configuration (JSON).
	ConfigPath string `yaml:"config_path"`
}

// InterfaceConfig describes a router-facing port. The MAC address is either
// given literally or resolved from a host link by name.
type InterfaceConfig struct {
	Port uint16 `yaml:"port"`
	Addr string `yaml:"addr"`
	MAC  string `yaml:"mac,omitempty"`
	Link string `yaml:"link,omitempty"`
}

type RouteConfig struct {
	Prefix  string `yaml:"prefix"`
	Nexthop string `yaml:"nexthop"`
	Port    uint16 `yaml:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
		Device: DeviceConfig{
			Endpoint:       "localhost:50051",
			MaxMessageSize: 16 * datasize.MB,
			CallTimeout:    10 * time.Second,
			AssignTimeout:  time.Minute,
			Port:           "9090",
			Notifications:  "ipc:///tmp/bmv2-0-notifications.ipc",
			CPUIface:       "veth251",
		},
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML serves as a proxy for validation.
//
// To avoid infinite recursion, the validating wrapper casts itself to the
// private config struct. This allows the decoder to operate on it using the
// default behavior for handling Go structs without an unmarshal method.
func (m *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*config)(m)); err != nil {
		return err
	}
	return m.Validate()
}

// Validate validates the daemon configuration.
func (m *Config) Validate() error {
	if m.Device.Endpoint == "" {
		return fmt.Errorf("device endpoint is not configured")
	}
	if m.Pipeline.ConfigPath == "" {
		return fmt.Errorf("pipeline config path is not configured")
	}
	for idx, ifc := range m.Interfaces {
		if err := ifc.Validate(); err != nil {
			return fmt.Errorf("interface #%d: %w", idx, err)
		}
	}
	for idx, route := range m.Routes {
		if err := route.Validate(); err != nil {
			return fmt.Errorf("route #%d: %w", idx, err)
		}
	}
	return nil
}

func (m *InterfaceConfig) Validate() error {
	addr, err := netip.ParseAddr(m.Addr)
	if err != nil {
		return fmt.Errorf("failed to parse address: %w", err)
	}
	if !addr.Is4() {
		return fmt.Errorf("interface address %q is not IPv4", m.Addr)
	}
	if (m.MAC == "") == (m.Link == "") {
		return fmt.Errorf("exactly one of mac or link must be set")
	}
	if m.MAC != "" {
		mac, err := net.ParseMAC(m.MAC)
		if err != nil {
			return fmt.Errorf("failed to parse MAC: %w", err)
		}
		if len(mac) != 6 {
			return fmt.Errorf("MAC %q is not an Ethernet address", m.MAC)
		}
	}
	return nil
}

func (m *RouteConfig) Validate() error {
	if _, err := netip.ParsePrefix(m.Prefix); err != nil {
		return fmt.Errorf("failed to parse prefix: %w", err)
	}
	nexthop, err := netip.ParseAddr(m.Nexthop)
	if err != nil {
		return fmt.Errorf("failed to parse nexthop: %w", err)
	}
	if !nexthop.Is4() {
		return fmt.Errorf("nexthop %q is not IPv4", m.Nexthop)
	}
	return nil
}
