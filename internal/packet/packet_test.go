package packet

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCPUHeaderRoundTrip(t *testing.T) {
	b := make([]byte, CPUHeaderLen)
	n := EncodeCPUHeader(b, 0, CPUHeader{Reason: ReasonARPMsg, Port: 7})
	require.Equal(t, CPUHeaderLen, n)

	hdr, ok := DecodeCPUHeader(b, 0)
	require.True(t, ok)
	require.Equal(t, CPUHeader{Reason: ReasonARPMsg, Port: 7}, hdr)
}

func TestDecodeCPUHeaderRejects(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
	}{
		{name: "empty", b: nil},
		{name: "short", b: make([]byte, CPUHeaderLen-1)},
		{
			name: "nonzero reserved",
			b:    []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, ok := DecodeCPUHeader(c.b, 0)
			require.False(t, ok)
		})
	}
}

func TestParsePuntedDataPacket(t *testing.T) {
	b := make([]byte, CPUHeaderLen+EthernetHeaderLen+20)
	EncodeCPUHeader(b, 0, CPUHeader{Reason: ReasonNoARPEntry, Port: 3})
	binary.BigEndian.PutUint16(b[CPUHeaderLen+12:], 0x0800)
	copy(b[ipv4DstOffset:], []byte{10, 0, 0, 10})

	p, ok := ParsePunted(b)
	require.True(t, ok)
	require.Equal(t, ReasonNoARPEntry, p.Header.Reason)
	require.Equal(t, netip.MustParseAddr("10.0.0.10"), p.DstAddr)
	require.Nil(t, p.ARP)
}

func TestParsePuntedRejects(t *testing.T) {
	truncated := make([]byte, CPUHeaderLen+EthernetHeaderLen+8)
	EncodeCPUHeader(truncated, 0, CPUHeader{Reason: ReasonNoARPEntry})

	dataPkt := make([]byte, CPUHeaderLen+EthernetHeaderLen+20)
	EncodeCPUHeader(dataPkt, 0, CPUHeader{Reason: ReasonDataPkt})

	garbageARP := make([]byte, CPUHeaderLen+EthernetHeaderLen+4)
	EncodeCPUHeader(garbageARP, 0, CPUHeader{Reason: ReasonARPMsg})

	cases := []struct {
		name string
		b    []byte
	}{
		{name: "header only", b: make([]byte, CPUHeaderLen)},
		{name: "truncated ipv4", b: truncated},
		{name: "unhandled reason", b: dataPkt},
		{name: "truncated arp", b: garbageARP},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, ok := ParsePunted(c.b)
			require.False(t, ok)
		})
	}
}

func TestARPRequestFrame(t *testing.T) {
	srcMAC, _ := net.ParseMAC("00:aa:bb:00:00:00")
	srcIP := netip.MustParseAddr("10.0.0.1")
	target := netip.MustParseAddr("10.0.0.10")

	frame, err := ARPRequestFrame(1, srcMAC, srcIP, target)
	require.NoError(t, err)

	p, ok := ParsePunted(frame)
	require.True(t, ok)
	require.Equal(t, CPUHeader{Reason: ReasonARPMsg, Port: 1}, p.Header)
	require.NotNil(t, p.ARP)
	require.Equal(t, ARPRequest, p.ARP.Opcode)
	require.Equal(t, srcMAC, p.ARP.SenderMAC)
	require.Equal(t, srcIP, p.ARP.SenderIP)
	require.Equal(t, target, p.ARP.TargetIP)

	// Broadcast destination on the Ethernet header.
	require.Equal(t, []byte(BroadcastMAC), frame[CPUHeaderLen:CPUHeaderLen+6])
}

func TestARPReplyFrame(t *testing.T) {
	srcMAC, _ := net.ParseMAC("00:aa:bb:00:00:00")
	dstMAC, _ := net.ParseMAC("00:aa:bb:00:00:02")
	srcIP := netip.MustParseAddr("10.0.0.1")
	dstIP := netip.MustParseAddr("10.0.0.10")

	frame, err := ARPReplyFrame(2, srcMAC, srcIP, dstMAC, dstIP)
	require.NoError(t, err)

	p, ok := ParsePunted(frame)
	require.True(t, ok)
	require.Equal(t, CPUHeader{Reason: ReasonARPMsg, Port: 2}, p.Header)
	require.Equal(t, ARPReply, p.ARP.Opcode)
	require.Equal(t, srcMAC, p.ARP.SenderMAC)
	require.Equal(t, srcIP, p.ARP.SenderIP)
	require.Equal(t, dstMAC, p.ARP.TargetMAC)
	require.Equal(t, dstIP, p.ARP.TargetIP)

	require.Equal(t, []byte(dstMAC), frame[CPUHeaderLen:CPUHeaderLen+6])
}

func TestRewriteForInjection(t *testing.T) {
	b := make([]byte, CPUHeaderLen+EthernetHeaderLen+20)
	EncodeCPUHeader(b, 0, CPUHeader{Reason: ReasonNoARPEntry, Port: 0})
	mac, _ := net.ParseMAC("00:aa:bb:00:00:02")

	require.True(t, RewriteForInjection(b, 5, mac))

	hdr, ok := DecodeCPUHeader(b, 0)
	require.True(t, ok)
	require.Equal(t, CPUHeader{Reason: ReasonDataPkt, Port: 5}, hdr)
	require.Equal(t, []byte(mac), b[CPUHeaderLen:CPUHeaderLen+6])
}

func TestRewriteForInjectionRejects(t *testing.T) {
	mac, _ := net.ParseMAC("00:aa:bb:00:00:02")
	cases := []struct {
		b   []byte
		mac net.HardwareAddr
	}{
		{b: make([]byte, CPUHeaderLen+EthernetHeaderLen-1), mac: mac},
		{b: make([]byte, CPUHeaderLen+EthernetHeaderLen), mac: mac[:3]},
	}
	for idx, c := range cases {
		t.Run(fmt.Sprintf("case #%d", idx), func(t *testing.T) {
			require.False(t, RewriteForInjection(c.b, 1, c.mac))
		})
	}
}
