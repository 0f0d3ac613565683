package device

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/p4net/routerd/internal/devicepb"
)

// PacketStream is the long-lived bidirectional punted/injected packet
// channel of one device.
//
// Sends and receives may run on different goroutines, but at most one of
// each: in this design all sends come from the command actor and the single
// receive loop only ever produces commands.
type PacketStream struct {
	deviceID uint64
	stream   devicepb.PacketIOStream
	log      *zap.SugaredLogger
}

// OpenPacketStream opens the packet stream. The stream lives until ctx is
// canceled or the device closes it; there is no reconnection.
func (m *Client) OpenPacketStream(ctx context.Context) (*PacketStream, error) {
	stream, err := m.packetIO.PacketIO(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open packet stream: %w", err)
	}
	return &PacketStream{
		deviceID: m.deviceID,
		stream:   stream,
		log:      m.log,
	}, nil
}

// SendInit announces the session to the device.
func (m *PacketStream) SendInit() error {
	return m.stream.Send(&devicepb.PacketOut{
		Init: &devicepb.StreamInit{DeviceID: m.deviceID},
	})
}

// SendPacketOut pushes a raw packet to device egress.
func (m *PacketStream) SendPacketOut(payload []byte) error {
	return m.stream.Send(&devicepb.PacketOut{
		Packet: &devicepb.Packet{Payload: payload},
	})
}

// Recv blocks reading inbound packet notifications and hands each payload to
// handler. It returns nil when the device closes the stream cleanly.
func (m *PacketStream) Recv(handler func(payload []byte)) error {
	for {
		in, err := m.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.log.Infow("packet stream closed by device")
				return nil
			}
			return fmt.Errorf("packet stream receive: %w", err)
		}
		if in.Packet == nil {
			continue
		}
		handler(in.Packet.Payload)
	}
}
