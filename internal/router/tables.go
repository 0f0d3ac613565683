package router

import (
	"context"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"github.com/p4net/routerd/internal/pipeline"
)

// Pipeline object names this controller is built against. An active pipeline
// that does not carry them is a controller/pipeline mismatch and aborts the
// process.
const (
	tableIPv4LPM   = "ipv4_lpm"
	tableForward   = "forward"
	tableSendFrame = "send_frame"

	actionSetNexthop = "set_nhop"
	actionSetDMAC    = "set_dmac"
	actionRewriteMAC = "rewrite_mac"
	actionDrop       = "_drop"

	fieldIPv4Dst    = "ipv4.dstAddr"
	fieldNexthop    = "routing_metadata.nhop_ipv4"
	fieldEgressPort = "standard_metadata.egress_port"

	paramNexthopIPv4 = "nhop_ipv4"
	paramPort        = "port"
	paramDMAC        = "dmac"
	paramSMAC        = "smac"
)

// writeEntry builds and installs one table entry, returning the device error
// count. Name resolution failures and transport failures abort the process.
func (m *Manager) writeEntry(ctx context.Context, e *pipeline.Entry) int {
	entry, err := e.Build()
	if err != nil {
		m.log.Fatalw("pipeline object resolution failed", zap.Error(err))
	}
	n, err := m.dev.WriteEntry(ctx, entry, true)
	if err != nil {
		m.fatalTransport(err)
		return 1
	}
	return n
}

// writeRouteEntry programs the LPM route entry. The match value is the
// next-hop address with the caller-supplied prefix length, not the route
// prefix: the pipeline matches on resolved next hops.
func (m *Manager) writeRouteEntry(ctx context.Context, nexthop netip.Addr, prefixLen int32, port uint16) int {
	e := pipeline.NewEntry(m.desc, tableIPv4LPM).
		MatchLPM(fieldIPv4Dst, pipeline.EncodeAddr4(nexthop), prefixLen).
		Action(actionSetNexthop).
		Param(paramNexthopIPv4, pipeline.EncodeAddr4(nexthop)).
		Param(paramPort, pipeline.EncodeUint16(port))
	return m.writeEntry(ctx, e)
}

// writeARPEntry programs the exact-match destination-MAC rewrite for a
// resolved next hop.
func (m *Manager) writeARPEntry(ctx context.Context, nexthop netip.Addr, mac net.HardwareAddr) int {
	e := pipeline.NewEntry(m.desc, tableForward).
		MatchExact(fieldNexthop, pipeline.EncodeAddr4(nexthop)).
		Action(actionSetDMAC).
		Param(paramDMAC, []byte(mac))
	return m.writeEntry(ctx, e)
}

// writeSourceMACEntry programs the egress source-MAC rewrite of one port.
func (m *Manager) writeSourceMACEntry(ctx context.Context, port uint16, mac net.HardwareAddr) int {
	e := pipeline.NewEntry(m.desc, tableSendFrame).
		MatchExact(fieldEgressPort, pipeline.EncodeUint16(port)).
		Action(actionRewriteMAC).
		Param(paramSMAC, []byte(mac))
	return m.writeEntry(ctx, e)
}

// writeDefaultEntries installs the default entries: unresolved next hop 0
// drops.
func (m *Manager) writeDefaultEntries(ctx context.Context) int {
	e := pipeline.NewEntry(m.desc, tableForward).
		MatchExact(fieldNexthop, pipeline.EncodeUint32(0)).
		Action(actionDrop)
	n := m.writeEntry(ctx, e)
	if n != 0 {
		m.log.Warnw("failed to install default entry",
			zap.String("table", tableForward),
			zap.Int("errors", n),
		)
	}
	return n
}
