package router

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/p4net/routerd/internal/packet"
)

// handlePunted dispatches one punted frame. Malformed frames are dropped
// silently: this path runs for every packet the device cannot forward and
// must never raise errors or block the receive loop.
func (m *Manager) handlePunted(data []byte) {
	p, ok := packet.ParsePunted(data)
	if !ok {
		m.log.Debugw("dropping malformed punted packet", zap.Int("len", len(data)))
		return
	}

	switch p.Header.Reason {
	case packet.ReasonNoARPEntry:
		m.handleMiss(data, p.DstAddr)
	case packet.ReasonARPMsg:
		switch p.ARP.Opcode {
		case packet.ARPRequest:
			m.handleARPRequest(p.ARP)
		case packet.ARPReply:
			m.handleARPReply(p.ARP)
		default:
			m.log.Debugw("ignoring ARP message", zap.Uint16("opcode", p.ARP.Opcode))
		}
	}
}

// handleMiss buffers a data packet whose next hop has no ARP entry yet. The
// first miss for a destination starts resolution; later misses only enqueue.
// Destinations with no next-hop entry are dropped: there is no route.
func (m *Manager) handleMiss(data []byte, dst netip.Addr) {
	port, ok := m.nextHops[dst]
	if !ok {
		m.log.Debugw("dropping punted packet with no route", zap.Stringer("dst", dst))
		return
	}

	_, resolving := m.pending[dst]
	m.pending[dst] = append(m.pending[dst], data)
	if resolving {
		return
	}

	m.sendARPRequest(port, dst)
}

// handleARPRequest answers requests targeting a local interface address;
// anything else is ignored (no ARP relaying).
func (m *Manager) handleARPRequest(arp *packet.ARPMessage) {
	ifc := m.ifaceByAddr(arp.TargetIP)
	if ifc == nil {
		return
	}

	frame, err := packet.ARPReplyFrame(ifc.Port, ifc.MAC, ifc.Addr, arp.SenderMAC, arp.SenderIP)
	if err != nil {
		m.log.Warnw("failed to build ARP reply", zap.Error(err))
		return
	}

	m.log.Debugw("sending ARP reply",
		zap.Stringer("target", arp.SenderIP),
		zap.Uint16("port", ifc.Port),
	)
	m.sendPacketOut(frame)
}

// handleARPReply resolves a next hop: the device-side destination-MAC entry
// is installed and every buffered packet for that destination is reinjected
// in arrival order, after which the queue is gone.
func (m *Manager) handleARPReply(arp *packet.ARPMessage) {
	nexthop := arp.SenderIP

	if n := m.writeARPEntry(m.runCtx, nexthop, arp.SenderMAC); n != 0 {
		m.log.Warnw("failed to program ARP entry",
			zap.Stringer("nexthop", nexthop),
			zap.Int("errors", n),
		)
	}

	queue, ok := m.pending[nexthop]
	if !ok {
		return
	}
	port := m.nextHops[nexthop]

	for _, buffered := range queue {
		if !packet.RewriteForInjection(buffered, port, arp.SenderMAC) {
			continue
		}
		m.log.Debugw("reinjecting data packet", zap.Stringer("nexthop", nexthop))
		m.sendPacketOut(buffered)
	}
	delete(m.pending, nexthop)
}

// sendARPRequest broadcasts a request for target out of port, sourced from
// the interface on that port. Without such an interface nothing is sent.
func (m *Manager) sendARPRequest(port uint16, target netip.Addr) {
	ifc := m.ifaceByPort(port)
	if ifc == nil {
		return
	}

	frame, err := packet.ARPRequestFrame(port, ifc.MAC, ifc.Addr, target)
	if err != nil {
		m.log.Warnw("failed to build ARP request", zap.Error(err))
		return
	}

	m.log.Debugw("sending ARP request",
		zap.Stringer("target", target),
		zap.Uint16("port", port),
	)
	m.sendPacketOut(frame)
}
