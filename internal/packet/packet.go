// Package packet implements the fixed-layout control headers exchanged with
// the forwarding device over its CPU port.
//
// Every punted or injected frame starts with a 12-byte CPU metadata header
// (eight reserved zero bytes, a reason code and a port, both big-endian),
// followed by an ordinary Ethernet frame.
package packet

import (
	"encoding/binary"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Reason codes carried in the CPU metadata header.
const (
	ReasonNoARPEntry uint16 = 0
	ReasonARPMsg     uint16 = 1
	ReasonDataPkt    uint16 = 2
)

const (
	// CPUHeaderLen is the wire size of the CPU metadata header.
	CPUHeaderLen = 12
	// EthernetHeaderLen is the wire size of an untagged Ethernet header.
	EthernetHeaderLen = 14
	// ARPHeaderLen is the wire size of an Ethernet/IPv4 ARP message.
	ARPHeaderLen = 28

	// Destination address offset within the IPv4 header of a punted data
	// packet. Only this field is consumed; no checksum or length
	// validation is performed.
	ipv4DstOffset = CPUHeaderLen + EthernetHeaderLen + 16
)

// CPUHeader is the decoded CPU metadata header.
type CPUHeader struct {
	Reason uint16
	Port   uint16
}

// EncodeCPUHeader writes the header into b at offset off and returns the
// number of bytes written. b must have at least CPUHeaderLen bytes available
// at off.
func EncodeCPUHeader(b []byte, off int, h CPUHeader) int {
	clear(b[off : off+8])
	binary.BigEndian.PutUint16(b[off+8:], h.Reason)
	binary.BigEndian.PutUint16(b[off+10:], h.Port)
	return CPUHeaderLen
}

// DecodeCPUHeader reads a CPU metadata header from b at offset off. It
// reports false when the input is short or the reserved bytes are not zero.
func DecodeCPUHeader(b []byte, off int) (CPUHeader, bool) {
	if len(b)-off < CPUHeaderLen {
		return CPUHeader{}, false
	}
	for _, c := range b[off : off+8] {
		if c != 0 {
			return CPUHeader{}, false
		}
	}
	return CPUHeader{
		Reason: binary.BigEndian.Uint16(b[off+8:]),
		Port:   binary.BigEndian.Uint16(b[off+10:]),
	}, true
}

// ARPMessage is the decoded ARP payload of a punted frame.
type ARPMessage struct {
	Opcode    uint16
	SenderMAC net.HardwareAddr
	SenderIP  netip.Addr
	TargetMAC net.HardwareAddr
	TargetIP  netip.Addr
}

// ARP opcodes.
const (
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

// Punted is a packet the device forwarded to the controller.
type Punted struct {
	Header CPUHeader

	// DstAddr is the IPv4 destination, set when Reason is NoARPEntry.
	DstAddr netip.Addr
	// ARP is the decoded ARP message, set when Reason is ARPMsg.
	ARP *ARPMessage
}

// ParsePunted decodes a punted frame. It reports false for frames that are
// short, carry non-zero reserved bytes or an unhandled reason; such frames
// are dropped by the caller.
func ParsePunted(b []byte) (Punted, bool) {
	hdr, ok := DecodeCPUHeader(b, 0)
	if !ok {
		return Punted{}, false
	}
	if len(b) < CPUHeaderLen+EthernetHeaderLen {
		return Punted{}, false
	}

	switch hdr.Reason {
	case ReasonNoARPEntry:
		if len(b) < ipv4DstOffset+4 {
			return Punted{}, false
		}
		var dst [4]byte
		copy(dst[:], b[ipv4DstOffset:])
		return Punted{Header: hdr, DstAddr: netip.AddrFrom4(dst)}, true

	case ReasonARPMsg:
		msg, ok := decodeARP(b[CPUHeaderLen+EthernetHeaderLen:])
		if !ok {
			return Punted{}, false
		}
		return Punted{Header: hdr, ARP: msg}, true
	}

	return Punted{}, false
}

func decodeARP(b []byte) (*ARPMessage, bool) {
	arp := &layers.ARP{}
	if err := arp.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}
	if arp.AddrType != layers.LinkTypeEthernet ||
		arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return nil, false
	}

	var sender, target [4]byte
	copy(sender[:], arp.SourceProtAddress)
	copy(target[:], arp.DstProtAddress)

	return &ARPMessage{
		Opcode:    arp.Operation,
		SenderMAC: net.HardwareAddr(arp.SourceHwAddress),
		SenderIP:  netip.AddrFrom4(sender),
		TargetMAC: net.HardwareAddr(arp.DstHwAddress),
		TargetIP:  netip.AddrFrom4(target),
	}, true
}

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPRequestFrame builds a broadcast ARP request for targetIP, sourced from
// the given interface addresses and prefixed with a CPU header directing the
// frame out of port.
func ARPRequestFrame(port uint16, srcMAC net.HardwareAddr, srcIP, targetIP netip.Addr) ([]byte, error) {
	return arpFrame(port, srcMAC, BroadcastMAC, ARPRequest, srcMAC, srcIP, BroadcastMAC, targetIP)
}

// ARPReplyFrame builds a unicast ARP reply to dstMAC/dstIP, sourced from the
// given interface addresses and prefixed with a CPU header directing the
// frame out of port.
func ARPReplyFrame(port uint16, srcMAC net.HardwareAddr, srcIP netip.Addr, dstMAC net.HardwareAddr, dstIP netip.Addr) ([]byte, error) {
	return arpFrame(port, srcMAC, dstMAC, ARPReply, srcMAC, srcIP, dstMAC, dstIP)
}

func arpFrame(
	port uint16,
	ethSrc, ethDst net.HardwareAddr,
	opcode uint16,
	senderMAC net.HardwareAddr, senderIP netip.Addr,
	targetMAC net.HardwareAddr, targetIP netip.Addr,
) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       ethSrc,
		DstMAC:       ethDst,
		EthernetType: layers.EthernetTypeARP,
	}
	sender4 := senderIP.As4()
	target4 := targetIP.As4()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         opcode,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: sender4[:],
		DstHwAddress:      targetMAC,
		DstProtAddress:    target4[:],
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, arp); err != nil {
		return nil, err
	}

	frame := make([]byte, CPUHeaderLen+len(buf.Bytes()))
	EncodeCPUHeader(frame, 0, CPUHeader{Reason: ReasonARPMsg, Port: port})
	copy(frame[CPUHeaderLen:], buf.Bytes())
	return frame, nil
}

// RewriteForInjection rewrites a buffered punted frame in place so it can be
// reinjected through the device: the CPU header is replaced with a data
// packet header for the egress port and the Ethernet destination is set to
// the resolved MAC. It reports false when the frame is too short to carry
// both headers.
func RewriteForInjection(b []byte, port uint16, dstMAC net.HardwareAddr) bool {
	if len(b) < CPUHeaderLen+EthernetHeaderLen || len(dstMAC) != 6 {
		return false
	}
	EncodeCPUHeader(b, 0, CPUHeader{Reason: ReasonDataPkt, Port: port})
	copy(b[CPUHeaderLen:CPUHeaderLen+6], dstMAC)
	return true
}
