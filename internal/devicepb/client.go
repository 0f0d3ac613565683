package devicepb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	deviceAssignMethod      = "/devicepb.Device/DeviceAssign"
	deviceUpdateStartMethod = "/devicepb.Device/DeviceUpdateStart"
	deviceUpdateEndMethod   = "/devicepb.Device/DeviceUpdateEnd"
	tableWriteMethod        = "/devicepb.Device/TableWrite"
	counterReadMethod       = "/devicepb.Device/CounterRead"
	packetIOMethod          = "/devicepb.PacketIO/PacketIO"
)

// withCodec forces the JSON content subtype on every call so callers do not
// have to configure it on the connection.
func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// DeviceClient is the client stub of the devicepb.Device service.
type DeviceClient struct {
	cc grpc.ClientConnInterface
}

func NewDeviceClient(cc grpc.ClientConnInterface) *DeviceClient {
	return &DeviceClient{cc: cc}
}

func (c *DeviceClient) DeviceAssign(ctx context.Context, in *AssignRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, deviceAssignMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) DeviceUpdateStart(ctx context.Context, in *UpdateStartRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, deviceUpdateStartMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) DeviceUpdateEnd(ctx context.Context, in *UpdateEndRequest, opts ...grpc.CallOption) (*Status, error) {
	out := new(Status)
	if err := c.cc.Invoke(ctx, deviceUpdateEndMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) TableWrite(ctx context.Context, in *TableWriteRequest, opts ...grpc.CallOption) (*TableWriteResponse, error) {
	out := new(TableWriteResponse)
	if err := c.cc.Invoke(ctx, tableWriteMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceClient) CounterRead(ctx context.Context, in *CounterReadRequest, opts ...grpc.CallOption) (*CounterReadResponse, error) {
	out := new(CounterReadResponse)
	if err := c.cc.Invoke(ctx, counterReadMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// PacketIOClient is the client stub of the devicepb.PacketIO service.
type PacketIOClient struct {
	cc grpc.ClientConnInterface
}

func NewPacketIOClient(cc grpc.ClientConnInterface) *PacketIOClient {
	return &PacketIOClient{cc: cc}
}

var packetIOStreamDesc = &grpc.StreamDesc{
	StreamName:    "PacketIO",
	ServerStreams: true,
	ClientStreams: true,
}

// PacketIOStream is the client view of the bidirectional packet stream.
type PacketIOStream interface {
	Send(*PacketOut) error
	Recv() (*PacketIn, error)
	grpc.ClientStream
}

func (c *PacketIOClient) PacketIO(ctx context.Context, opts ...grpc.CallOption) (PacketIOStream, error) {
	stream, err := c.cc.NewStream(ctx, packetIOStreamDesc, packetIOMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &packetIOStream{ClientStream: stream}, nil
}

type packetIOStream struct {
	grpc.ClientStream
}

func (x *packetIOStream) Send(m *PacketOut) error {
	return x.ClientStream.SendMsg(m)
}

func (x *packetIOStream) Recv() (*PacketIn, error) {
	m := new(PacketIn)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
