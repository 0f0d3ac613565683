// Package devicetest provides an in-memory fake of the forwarding device:
// a real gRPC server speaking the device protocol over an in-process
// listener, with knobs to simulate device-reported failures and to drive the
// packet stream from both sides.
package devicetest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/p4net/routerd/internal/devicepb"
)

// CounterKey addresses one counter cell.
type CounterKey struct {
	ID    uint32
	Index uint64
}

// Device implements devicepb.DeviceServer and devicepb.PacketIOServer.
type Device struct {
	mu              sync.Mutex
	assignReq       *devicepb.AssignRequest
	updates         []*devicepb.TableUpdate
	counters        map[CounterKey]devicepb.CounterData
	writeFailures   int
	updateStartCode int32
	updateEndCode   int32
	lastPipeline    []byte

	inits      chan uint64
	packetOuts chan []byte
	packetIns  chan []byte

	closeOnce   sync.Once
	closeStream chan struct{}
}

func New() *Device {
	return &Device{
		counters:    make(map[CounterKey]devicepb.CounterData),
		inits:       make(chan uint64, 16),
		packetOuts:  make(chan []byte, 64),
		packetIns:   make(chan []byte, 64),
		closeStream: make(chan struct{}),
	}
}

// Start serves the fake over an in-process listener and returns a client
// connection to it. Both are torn down with the test.
func Start(t *testing.T) (*Device, *grpc.ClientConn) {
	t.Helper()

	d := New()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	devicepb.RegisterDeviceServer(server, d)
	devicepb.RegisterPacketIOServer(server, d)
	go server.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///device",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to connect to fake device: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return d, conn
}

// FailNextWrites makes the next n table updates be rejected with a
// device-reported write error.
func (d *Device) FailNextWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeFailures = n
}

// SetUpdateStartCode sets the status code DeviceUpdateStart reports.
func (d *Device) SetUpdateStartCode(code int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateStartCode = code
}

// SetUpdateEndCode sets the status code DeviceUpdateEnd reports.
func (d *Device) SetUpdateEndCode(code int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateEndCode = code
}

// SetCounter installs a counter reading.
func (d *Device) SetCounter(id uint32, index uint64, data devicepb.CounterData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters[CounterKey{ID: id, Index: index}] = data
}

// Updates returns a snapshot of the applied table updates, in arrival order.
func (d *Device) Updates() []*devicepb.TableUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*devicepb.TableUpdate, len(d.updates))
	copy(out, d.updates)
	return out
}

// AssignRequest returns the recorded assign request, if any.
func (d *Device) AssignRequest() *devicepb.AssignRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.assignReq
}

// LastPipeline returns the pipeline blob of the last update start.
func (d *Device) LastPipeline() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPipeline
}

// InjectPacketIn queues a punted packet for delivery to the controller.
func (d *Device) InjectPacketIn(payload []byte) {
	d.packetIns <- payload
}

// PacketOuts exposes the payloads the controller injected.
func (d *Device) PacketOuts() <-chan []byte {
	return d.packetOuts
}

// Inits exposes the stream init announcements.
func (d *Device) Inits() <-chan uint64 {
	return d.inits
}

// CloseStream closes the packet stream from the device side.
func (d *Device) CloseStream() {
	d.closeOnce.Do(func() { close(d.closeStream) })
}

func (d *Device) DeviceAssign(ctx context.Context, req *devicepb.AssignRequest) (*devicepb.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignReq = req
	return &devicepb.Status{Code: devicepb.CodeOK}, nil
}

func (d *Device) DeviceUpdateStart(ctx context.Context, req *devicepb.UpdateStartRequest) (*devicepb.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateStartCode != devicepb.CodeOK {
		return &devicepb.Status{Code: d.updateStartCode, Message: "update start refused"}, nil
	}
	// The device loses all table state on a pipeline swap.
	d.updates = nil
	d.lastPipeline = req.Pipeline
	return &devicepb.Status{Code: devicepb.CodeOK}, nil
}

func (d *Device) DeviceUpdateEnd(ctx context.Context, req *devicepb.UpdateEndRequest) (*devicepb.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateEndCode != devicepb.CodeOK {
		return &devicepb.Status{Code: d.updateEndCode, Message: "update end refused"}, nil
	}
	return &devicepb.Status{Code: devicepb.CodeOK}, nil
}

func (d *Device) TableWrite(ctx context.Context, req *devicepb.TableWriteRequest) (*devicepb.TableWriteResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := &devicepb.TableWriteResponse{}
	for i, update := range req.Updates {
		if d.writeFailures > 0 {
			d.writeFailures--
			resp.Errors = append(resp.Errors, &devicepb.WriteError{
				Index:   i,
				Message: "simulated write failure",
			})
			continue
		}
		d.updates = append(d.updates, update)
	}
	return resp, nil
}

func (d *Device) CounterRead(ctx context.Context, req *devicepb.CounterReadRequest) (*devicepb.CounterReadResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp := &devicepb.CounterReadResponse{}
	for _, id := range req.CounterIDs {
		for key, data := range d.counters {
			if key.ID != id {
				continue
			}
			resp.Entries = append(resp.Entries, &devicepb.CounterEntry{
				CounterID: key.ID,
				Index:     key.Index,
				Data:      &devicepb.CounterData{Packets: data.Packets, Bytes: data.Bytes},
			})
		}
	}
	return resp, nil
}

func (d *Device) PacketIO(stream devicepb.PacketIOServerStream) error {
	recvDone := make(chan error, 1)
	go func() {
		for {
			out, err := stream.Recv()
			if err != nil {
				recvDone <- err
				return
			}
			if out.Init != nil {
				d.inits <- out.Init.DeviceID
			}
			if out.Packet != nil {
				d.packetOuts <- out.Packet.Payload
			}
		}
	}()

	for {
		select {
		case payload := <-d.packetIns:
			if err := stream.Send(&devicepb.PacketIn{Packet: &devicepb.Packet{Payload: payload}}); err != nil {
				return err
			}
		case <-d.closeStream:
			return nil
		case err := <-recvDone:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
