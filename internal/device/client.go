// Package device wraps the table-programming and packet stream protocol of
// a single forwarding device.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/p4net/routerd/internal/devicepb"
	"github.com/p4net/routerd/internal/pipeline"
)

// ErrCounterNotFound is returned when the device does not report the
// requested counter.
var ErrCounterNotFound = errors.New("counter not found")

// StatusError is a device-reported non-OK management status. It is
// recoverable: the process continues and the caller decides what to do.
type StatusError struct {
	Code    int32
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device reported status %d", e.Code)
	}
	return fmt.Sprintf("device reported status %d: %s", e.Code, e.Message)
}

// CounterValue is a counter reading.
type CounterValue struct {
	Packets uint64
	Bytes   uint64
}

type options struct {
	Log         *zap.SugaredLogger
	CallTimeout time.Duration
}

func newOptions() *options {
	return &options{
		Log:         zap.NewNop().Sugar(),
		CallTimeout: 10 * time.Second,
	}
}

// Option configures a Client.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithCallTimeout bounds every unary device call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.CallTimeout = d
	}
}

// Client issues synchronous management calls to one device and owns its
// packet stream endpoint. Every unary call runs under a fresh per-call
// context.
type Client struct {
	deviceID    uint64
	rpc         *devicepb.DeviceClient
	packetIO    *devicepb.PacketIOClient
	callTimeout time.Duration
	log         *zap.SugaredLogger
}

// NewClient creates a device client over an established connection.
func NewClient(conn grpc.ClientConnInterface, deviceID uint64, opts ...Option) *Client {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{
		deviceID:    deviceID,
		rpc:         devicepb.NewDeviceClient(conn),
		packetIO:    devicepb.NewPacketIOClient(conn),
		callTimeout: o.CallTimeout,
		log:         o.Log,
	}
}

// DeviceID returns the identifier this client is bound to.
func (m *Client) DeviceID() uint64 {
	return m.deviceID
}

func (m *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.callTimeout)
}

// Assign binds the device to this controller with the given pipeline and
// device-specific extras.
func (m *Client) Assign(ctx context.Context, desc *pipeline.Description, extras map[string]string) error {
	ctx, cancel := m.callCtx(ctx)
	defer cancel()

	rep, err := m.rpc.DeviceAssign(ctx, &devicepb.AssignRequest{
		DeviceID: m.deviceID,
		Pipeline: desc.Blob(),
		Extras:   extras,
	})
	if err != nil {
		return fmt.Errorf("device assign: %w", err)
	}
	return statusErr(rep)
}

// WriteEntry installs or modifies one table entry and returns the number of
// updates the device rejected.
func (m *Client) WriteEntry(ctx context.Context, entry *devicepb.TableEntry, insert bool) (int, error) {
	ctx, cancel := m.callCtx(ctx)
	defer cancel()

	typ := devicepb.UpdateModify
	if insert {
		typ = devicepb.UpdateInsert
	}
	rep, err := m.rpc.TableWrite(ctx, &devicepb.TableWriteRequest{
		DeviceID: m.deviceID,
		Updates:  []*devicepb.TableUpdate{{Type: typ, Entry: entry}},
	})
	if err != nil {
		return 0, fmt.Errorf("table write: %w", err)
	}
	for _, e := range rep.Errors {
		m.log.Warnw("device rejected table update",
			zap.Int("index", e.Index),
			zap.String("message", e.Message),
			zap.Uint32("table", entry.TableID),
		)
	}
	return len(rep.Errors), nil
}

// ReadCounter reads one counter cell. ErrCounterNotFound is returned when
// the device does not report it.
func (m *Client) ReadCounter(ctx context.Context, counterID uint32, index uint64) (CounterValue, error) {
	ctx, cancel := m.callCtx(ctx)
	defer cancel()

	rep, err := m.rpc.CounterRead(ctx, &devicepb.CounterReadRequest{
		DeviceID:   m.deviceID,
		CounterIDs: []uint32{counterID},
	})
	if err != nil {
		return CounterValue{}, fmt.Errorf("counter read: %w", err)
	}
	for _, entry := range rep.Entries {
		if entry.CounterID == counterID && entry.Index == index && entry.Data != nil {
			return CounterValue{Packets: entry.Data.Packets, Bytes: entry.Data.Bytes}, nil
		}
	}
	return CounterValue{}, ErrCounterNotFound
}

// UpdateStart begins the atomic pipeline swap on the device.
func (m *Client) UpdateStart(ctx context.Context, desc *pipeline.Description, raw []byte) error {
	ctx, cancel := m.callCtx(ctx)
	defer cancel()

	rep, err := m.rpc.DeviceUpdateStart(ctx, &devicepb.UpdateStartRequest{
		DeviceID:   m.deviceID,
		Pipeline:   desc.Blob(),
		DeviceData: raw,
	})
	if err != nil {
		return fmt.Errorf("device update start: %w", err)
	}
	return statusErr(rep)
}

// UpdateEnd commits the pipeline swap.
func (m *Client) UpdateEnd(ctx context.Context) error {
	ctx, cancel := m.callCtx(ctx)
	defer cancel()

	rep, err := m.rpc.DeviceUpdateEnd(ctx, &devicepb.UpdateEndRequest{DeviceID: m.deviceID})
	if err != nil {
		return fmt.Errorf("device update end: %w", err)
	}
	return statusErr(rep)
}

func statusErr(rep *devicepb.Status) error {
	if rep.Code == devicepb.CodeOK {
		return nil
	}
	return &StatusError{Code: rep.Code, Message: rep.Message}
}
