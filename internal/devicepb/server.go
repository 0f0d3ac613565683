package devicepb

import (
	"context"

	"google.golang.org/grpc"
)

// DeviceServer is the server side of the devicepb.Device service. It is
// implemented by device simulators and by the in-process fake used in tests.
type DeviceServer interface {
	DeviceAssign(context.Context, *AssignRequest) (*Status, error)
	DeviceUpdateStart(context.Context, *UpdateStartRequest) (*Status, error)
	DeviceUpdateEnd(context.Context, *UpdateEndRequest) (*Status, error)
	TableWrite(context.Context, *TableWriteRequest) (*TableWriteResponse, error)
	CounterRead(context.Context, *CounterReadRequest) (*CounterReadResponse, error)
}

func RegisterDeviceServer(s grpc.ServiceRegistrar, srv DeviceServer) {
	s.RegisterService(&deviceServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(DeviceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DeviceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DeviceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var deviceServiceDesc = grpc.ServiceDesc{
	ServiceName: "devicepb.Device",
	HandlerType: (*DeviceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DeviceAssign",
			Handler: unaryHandler(deviceAssignMethod,
				func(srv DeviceServer, ctx context.Context, in *AssignRequest) (*Status, error) {
					return srv.DeviceAssign(ctx, in)
				}),
		},
		{
			MethodName: "DeviceUpdateStart",
			Handler: unaryHandler(deviceUpdateStartMethod,
				func(srv DeviceServer, ctx context.Context, in *UpdateStartRequest) (*Status, error) {
					return srv.DeviceUpdateStart(ctx, in)
				}),
		},
		{
			MethodName: "DeviceUpdateEnd",
			Handler: unaryHandler(deviceUpdateEndMethod,
				func(srv DeviceServer, ctx context.Context, in *UpdateEndRequest) (*Status, error) {
					return srv.DeviceUpdateEnd(ctx, in)
				}),
		},
		{
			MethodName: "TableWrite",
			Handler: unaryHandler(tableWriteMethod,
				func(srv DeviceServer, ctx context.Context, in *TableWriteRequest) (*TableWriteResponse, error) {
					return srv.TableWrite(ctx, in)
				}),
		},
		{
			MethodName: "CounterRead",
			Handler: unaryHandler(counterReadMethod,
				func(srv DeviceServer, ctx context.Context, in *CounterReadRequest) (*CounterReadResponse, error) {
					return srv.CounterRead(ctx, in)
				}),
		},
	},
}

// PacketIOServerStream is the server view of the bidirectional packet
// stream.
type PacketIOServerStream interface {
	Send(*PacketIn) error
	Recv() (*PacketOut, error)
	grpc.ServerStream
}

// PacketIOServer is the server side of the devicepb.PacketIO service.
type PacketIOServer interface {
	PacketIO(PacketIOServerStream) error
}

func RegisterPacketIOServer(s grpc.ServiceRegistrar, srv PacketIOServer) {
	s.RegisterService(&packetIOServiceDesc, srv)
}

var packetIOServiceDesc = grpc.ServiceDesc{
	ServiceName: "devicepb.PacketIO",
	HandlerType: (*PacketIOServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "PacketIO",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(PacketIOServer).PacketIO(&packetIOServerStream{ServerStream: stream})
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

type packetIOServerStream struct {
	grpc.ServerStream
}

func (x *packetIOServerStream) Send(m *PacketIn) error {
	return x.ServerStream.SendMsg(m)
}

func (x *packetIOServerStream) Recv() (*PacketOut, error) {
	m := new(PacketOut)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
