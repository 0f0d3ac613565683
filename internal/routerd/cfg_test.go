package routerd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
device:
  endpoint: "[::1]:50051"
  id: 7
  call_timeout: 5s
pipeline:
  config_path: /etc/routerd/pipeline.json
interfaces:
  - port: 1
    addr: 10.0.0.1
    mac: 00:aa:bb:00:00:00
routes:
  - prefix: 10.0.1.0/24
    nexthop: 10.0.0.10
    port: 1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "[::1]:50051", cfg.Device.Endpoint)
	require.Equal(t, uint64(7), cfg.Device.ID)
	require.Equal(t, 5*time.Second, cfg.Device.CallTimeout)
	require.Equal(t, "/etc/routerd/pipeline.json", cfg.Pipeline.ConfigPath)
	require.Len(t, cfg.Interfaces, 1)
	require.Len(t, cfg.Routes, 1)

	// Defaults survive a partial override.
	require.Equal(t, time.Minute, cfg.Device.AssignTimeout)
	require.Equal(t, map[string]string{
		"port":          "9090",
		"notifications": "ipc:///tmp/bmv2-0-notifications.ipc",
		"cpu_iface":     "veth251",
	}, cfg.Device.Extras())
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		cfg   string
		valid bool
	}{
		{
			cfg:   `pipeline: {config_path: /p.json}`,
			valid: true,
		},
		{
			// Pipeline path is mandatory.
			cfg:   `device: {endpoint: "localhost:50051"}`,
			valid: false,
		},
		{
			cfg: `
pipeline: {config_path: /p.json}
interfaces:
  - {port: 1, addr: 10.0.0.1, link: eth0}
`,
			valid: true,
		},
		{
			// Both mac and link.
			cfg: `
pipeline: {config_path: /p.json}
interfaces:
  - {port: 1, addr: 10.0.0.1, mac: "00:aa:bb:00:00:00", link: eth0}
`,
			valid: false,
		},
		{
			// Neither mac nor link.
			cfg: `
pipeline: {config_path: /p.json}
interfaces:
  - {port: 1, addr: 10.0.0.1}
`,
			valid: false,
		},
		{
			// IPv6 interface address.
			cfg: `
pipeline: {config_path: /p.json}
interfaces:
  - {port: 1, addr: "fe80::1", mac: "00:aa:bb:00:00:00"}
`,
			valid: false,
		},
		{
			// Broken MAC.
			cfg: `
pipeline: {config_path: /p.json}
interfaces:
  - {port: 1, addr: 10.0.0.1, mac: "not-a-mac"}
`,
			valid: false,
		},
		{
			// Broken route prefix.
			cfg: `
pipeline: {config_path: /p.json}
routes:
  - {prefix: "10.0.1.0", nexthop: 10.0.0.10, port: 1}
`,
			valid: false,
		},
		{
			// IPv6 nexthop.
			cfg: `
pipeline: {config_path: /p.json}
routes:
  - {prefix: "10.0.1.0/24", nexthop: "::1", port: 1}
`,
			valid: false,
		},
	}

	for idx, c := range cases {
		t.Run(fmt.Sprintf("case #%d", idx), func(t *testing.T) {
			cfg := DefaultConfig()
			err := yaml.Unmarshal([]byte(c.cfg), cfg)
			if c.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
