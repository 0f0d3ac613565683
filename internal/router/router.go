// Package router owns the controller-side state of a simple IPv4 router
// (interfaces, next-hop table, pending-packet queues and the active pipeline
// description) and keeps the forwarding device's tables in sync with it.
//
// All mutable state belongs to a single command actor: external callers and
// the packet-receive loop submit commands to an unbounded FIFO mailbox and a
// single worker goroutine runs them one at a time. The actor is the only
// writer of router state and the only sender on the packet stream.
package router

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/p4net/routerd/internal/device"
	"github.com/p4net/routerd/internal/pipeline"
)

// Iface is a router-facing device port. Interfaces are append-only: there is
// no update or delete path.
type Iface struct {
	Port uint16
	Addr netip.Addr
	MAC  net.HardwareAddr
}

// routeRecord remembers enough of an installed route to rebuild its
// device-side entry after a pipeline reload.
type routeRecord struct {
	nexthop   netip.Addr
	prefixLen int32
	port      uint16
}

// Manager is the control-plane core of one device.
type Manager struct {
	dev  *device.Client
	desc *pipeline.Description

	assigned bool
	stream   *device.PacketStream
	streamCh chan *device.PacketStream

	ifaces   []Iface
	nextHops map[netip.Addr]uint16
	routes   []routeRecord
	// pending holds punted payloads per unresolved destination, FIFO. A
	// destination is present here exactly while its ARP resolution is
	// outstanding.
	pending map[netip.Addr][][]byte

	mailbox *mailbox
	runCtx  context.Context
	log     *zap.SugaredLogger
}

// NewManager creates a manager for the given device with the initial
// pipeline description active.
func NewManager(dev *device.Client, desc *pipeline.Description, log *zap.SugaredLogger) *Manager {
	return &Manager{
		dev:      dev,
		desc:     desc,
		streamCh: make(chan *device.PacketStream, 1),
		nextHops: make(map[netip.Addr]uint16),
		pending:  make(map[netip.Addr][][]byte),
		mailbox:  newMailbox(),
		log:      log,
	}
}

// Run runs the command actor and, once the device is assigned, the packet
// receive loop. It must be running before any public operation is called.
func (m *Manager) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	m.runCtx = ctx

	wg.Go(func() error {
		return m.runActor(ctx)
	})
	wg.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case stream := <-m.streamCh:
			return stream.Recv(func(payload []byte) {
				m.post(func() { m.handlePunted(payload) })
			})
		}
	})

	return wg.Wait()
}

func (m *Manager) runActor(ctx context.Context) error {
	for {
		cmd, ok := m.mailbox.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.mailbox.wake:
			}
			continue
		}

		// Commands run to completion; cancellation only takes effect
		// between commands.
		cmd()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// post submits a fire-and-forget command.
func (m *Manager) post(cmd command) {
	m.mailbox.push(cmd)
}

// call submits a command and blocks until the actor has fulfilled its
// single-use result slot. There is no timeout: a stuck actor blocks the
// caller indefinitely.
func call[T any](m *Manager, fn func() T) T {
	result := make(chan T, 1)
	m.post(func() {
		result <- fn()
	})
	return <-result
}

// Assign binds the device, opens the packet stream and announces the
// session. Idempotent: repeated calls after success are no-ops.
func (m *Manager) Assign(ctx context.Context, extras map[string]string) error {
	return call(m, func() error { return m.assign(ctx, extras) })
}

func (m *Manager) assign(ctx context.Context, extras map[string]string) error {
	if m.assigned {
		return nil
	}
	if err := m.dev.Assign(ctx, m.desc, extras); err != nil {
		return err
	}

	// The stream must outlive this call, so it is bound to the run
	// context rather than the caller's.
	stream, err := m.dev.OpenPacketStream(m.runCtx)
	if err != nil {
		return err
	}
	if err := stream.SendInit(); err != nil {
		return err
	}

	m.stream = stream
	m.assigned = true
	m.streamCh <- stream

	m.log.Infow("assigned device", zap.Uint64("device", m.dev.DeviceID()))
	return nil
}

// AddRoute installs "to reach nexthop, forward out port" into controller
// state and programs the matching device entry. It returns the device error
// count; controller state is updated regardless.
func (m *Manager) AddRoute(ctx context.Context, prefix netip.Prefix, nexthop netip.Addr, port uint16) int {
	return call(m, func() int { return m.addRoute(ctx, prefix, nexthop, port) })
}

func (m *Manager) addRoute(ctx context.Context, prefix netip.Prefix, nexthop netip.Addr, port uint16) int {
	m.nextHops[nexthop] = port
	m.routes = append(m.routes, routeRecord{
		nexthop:   nexthop,
		prefixLen: int32(prefix.Bits()),
		port:      port,
	})
	return m.writeRouteEntry(ctx, nexthop, int32(prefix.Bits()), port)
}

// AddInterface registers a router-facing port and programs its source-MAC
// rewrite entry on the device.
func (m *Manager) AddInterface(ctx context.Context, port uint16, addr netip.Addr, mac net.HardwareAddr) {
	call(m, func() struct{} {
		m.addInterface(ctx, port, addr, mac)
		return struct{}{}
	})
}

func (m *Manager) addInterface(ctx context.Context, port uint16, addr netip.Addr, mac net.HardwareAddr) {
	m.ifaces = append(m.ifaces, Iface{Port: port, Addr: addr, MAC: mac})

	ifc := m.ifaceByPort(port)
	if ifc == nil {
		return
	}
	if n := m.writeSourceMACEntry(ctx, ifc.Port, ifc.MAC); n != 0 {
		m.log.Warnw("failed to program source MAC entry",
			zap.Uint16("port", port),
			zap.Int("errors", n),
		)
	}
}

// SetDefaultEntries installs the device-side default entries and returns the
// device error count.
func (m *Manager) SetDefaultEntries(ctx context.Context) int {
	return call(m, func() int { return m.writeDefaultEntries(ctx) })
}

// QueryCounter reads one counter cell by symbolic name.
func (m *Manager) QueryCounter(ctx context.Context, name string, index uint64) (device.CounterValue, error) {
	type result struct {
		value device.CounterValue
		err   error
	}
	r := call(m, func() result {
		v, err := m.queryCounter(ctx, name, index)
		return result{value: v, err: err}
	})
	return r.value, r.err
}

func (m *Manager) queryCounter(ctx context.Context, name string, index uint64) (device.CounterValue, error) {
	id, err := m.desc.CounterID(name)
	if err != nil {
		return device.CounterValue{}, err
	}
	value, err := m.dev.ReadCounter(ctx, id, index)
	if err != nil && !errors.Is(err, device.ErrCounterNotFound) {
		m.fatalTransport(err)
	}
	return value, err
}

// QueryCountersMatching reads index 0 of every counter of the active
// pipeline whose name matches the glob pattern. Counters the device does not
// report are skipped.
func (m *Manager) QueryCountersMatching(ctx context.Context, pattern string) (map[string]device.CounterValue, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return call(m, func() map[string]device.CounterValue {
		values := make(map[string]device.CounterValue)
		for _, name := range m.desc.CounterNames() {
			if !g.Match(name) {
				continue
			}
			value, err := m.queryCounter(ctx, name, 0)
			if err != nil {
				continue
			}
			values[name] = value
		}
		return values
	}), nil
}

// ReloadPipeline atomically swaps the active pipeline and replays device-side
// state under the new identifiers.
func (m *Manager) ReloadPipeline(ctx context.Context, raw []byte) error {
	return call(m, func() error { return m.reloadPipeline(ctx, raw) })
}

// SendPacketOut queues a raw packet for injection through the device.
func (m *Manager) SendPacketOut(payload []byte) {
	m.post(func() { m.sendPacketOut(payload) })
}

func (m *Manager) sendPacketOut(payload []byte) {
	if m.stream == nil {
		m.log.Debugw("dropping packet out, stream not open")
		return
	}
	if err := m.stream.SendPacketOut(payload); err != nil {
		m.log.Warnw("failed to send packet out", zap.Error(err))
	}
}

func (m *Manager) ifaceByPort(port uint16) *Iface {
	for i := range m.ifaces {
		if m.ifaces[i].Port == port {
			return &m.ifaces[i]
		}
	}
	return nil
}

func (m *Manager) ifaceByAddr(addr netip.Addr) *Iface {
	for i := range m.ifaces {
		if m.ifaces[i].Addr == addr {
			return &m.ifaces[i]
		}
	}
	return nil
}

// fatalTransport aborts the process on a transport-level device failure.
// Device-reported statuses and error counts are recoverable and never reach
// this path.
func (m *Manager) fatalTransport(err error) {
	var status *device.StatusError
	if errors.As(err, &status) {
		return
	}
	m.log.Fatalw("device transport failure", zap.Error(err))
}
