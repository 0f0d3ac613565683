// Package routerd assembles the control-plane daemon: it loads the pipeline
// configuration, connects to the forwarding device and drives the router
// manager through assignment and static configuration.
package routerd

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/p4net/routerd/internal/device"
	"github.com/p4net/routerd/internal/pipeline"
	"github.com/p4net/routerd/internal/router"
)

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Option configures the daemon.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// RouterD is the daemon: a device connection, a router manager and the
// bootstrap sequence that brings both to the configured state.
type RouterD struct {
	cfg     *Config
	conn    *grpc.ClientConn
	manager *router.Manager
	log     *zap.SugaredLogger
}

// NewRouterD creates the daemon from its configuration. The initial pipeline
// is loaded here so a broken configuration fails before anything runs; the
// device connection is created lazily by gRPC and not dialed yet.
func NewRouterD(cfg *Config, options ...Option) (*RouterD, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}
	log := opts.Log

	raw, err := os.ReadFile(cfg.Pipeline.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}
	desc, err := pipeline.Load(raw, pipeline.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Device.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(int(cfg.Device.MaxMessageSize.Bytes())),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device connection: %w", err)
	}

	dev := device.NewClient(conn, cfg.Device.ID,
		device.WithLog(log),
		device.WithCallTimeout(cfg.Device.CallTimeout),
	)

	return &RouterD{
		cfg:     cfg,
		conn:    conn,
		manager: router.NewManager(dev, desc, log),
		log:     log,
	}, nil
}

// Manager exposes the router manager, the daemon's operational surface.
func (m *RouterD) Manager() *router.Manager {
	return m.manager
}

// Close releases the device connection.
func (m *RouterD) Close() error {
	return m.conn.Close()
}

// Run runs the manager and the bootstrap sequence until the context is
// canceled or either fails.
func (m *RouterD) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.manager.Run(ctx)
	})
	wg.Go(func() error {
		return m.bootstrap(ctx)
	})
	return wg.Wait()
}

// bootstrap assigns the device, applies the static interface and route
// configuration and installs the default entries.
func (m *RouterD) bootstrap(ctx context.Context) error {
	if err := m.assign(ctx); err != nil {
		return err
	}
	if err := m.applyStaticConfig(ctx); err != nil {
		return err
	}
	if n := m.manager.SetDefaultEntries(ctx); n != 0 {
		m.log.Warnw("default entries reported device errors", zap.Int("errors", n))
	}

	m.log.Infow("device bootstrapped",
		zap.String("endpoint", m.cfg.Device.Endpoint),
		zap.Uint64("device", m.cfg.Device.ID),
		zap.Int("interfaces", len(m.cfg.Interfaces)),
		zap.Int("routes", len(m.cfg.Routes)),
	)
	return nil
}

// assign retries the device assignment with exponential backoff until it
// succeeds or the assign timeout elapses. The device may come up after us.
func (m *RouterD) assign(ctx context.Context) error {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := m.manager.Assign(ctx, m.cfg.Device.Extras()); err != nil {
			m.log.Warnw("device assign failed, retrying", zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(m.cfg.Device.AssignTimeout))
	if err != nil {
		return fmt.Errorf("failed to assign device: %w", err)
	}
	return nil
}

func (m *RouterD) applyStaticConfig(ctx context.Context) error {
	for _, ifc := range m.cfg.Interfaces {
		addr, err := netip.ParseAddr(ifc.Addr)
		if err != nil {
			return fmt.Errorf("interface address %q: %w", ifc.Addr, err)
		}
		mac, err := resolveMAC(ifc)
		if err != nil {
			return err
		}
		m.manager.AddInterface(ctx, ifc.Port, addr, mac)
	}

	for _, route := range m.cfg.Routes {
		prefix, err := netip.ParsePrefix(route.Prefix)
		if err != nil {
			return fmt.Errorf("route prefix %q: %w", route.Prefix, err)
		}
		nexthop, err := netip.ParseAddr(route.Nexthop)
		if err != nil {
			return fmt.Errorf("route nexthop %q: %w", route.Nexthop, err)
		}
		if n := m.manager.AddRoute(ctx, prefix, nexthop, route.Port); n != 0 {
			m.log.Warnw("route reported device errors",
				zap.String("prefix", route.Prefix),
				zap.Int("errors", n),
			)
		}
	}
	return nil
}

// resolveMAC returns the interface MAC, either given literally or taken from
// the named host link.
func resolveMAC(ifc InterfaceConfig) (net.HardwareAddr, error) {
	if ifc.MAC != "" {
		return net.ParseMAC(ifc.MAC)
	}
	link, err := netlink.LinkByName(ifc.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve link %q: %w", ifc.Link, err)
	}
	return link.Attrs().HardwareAddr, nil
}
