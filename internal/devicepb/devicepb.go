// Package devicepb defines the messages and service surface of the device
// table-programming protocol.
//
// The protocol is carried over gRPC with a JSON codec: the device side of
// this project speaks the same encoding, so no generated protobuf code is
// involved. Client stubs and service descriptors are declared by hand.
package devicepb

// Status is the application-level result of a device management call.
type Status struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

// CodeOK is the Status code reported on success.
const CodeOK int32 = 0

// AssignRequest binds a device to this controller and ships the initial
// pipeline configuration together with device-specific extras (listening
// port, notifications endpoint, CPU-facing interface name).
type AssignRequest struct {
	DeviceID uint64            `json:"device_id"`
	Pipeline []byte            `json:"pipeline"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// UpdateType discriminates table update operations.
type UpdateType string

const (
	UpdateInsert UpdateType = "INSERT"
	UpdateModify UpdateType = "MODIFY"
	UpdateDelete UpdateType = "DELETE"
)

// TableWriteRequest carries a batch of table updates.
type TableWriteRequest struct {
	DeviceID uint64         `json:"device_id"`
	Updates  []*TableUpdate `json:"updates"`
}

type TableUpdate struct {
	Type  UpdateType  `json:"type"`
	Entry *TableEntry `json:"entry"`
}

// TableWriteResponse reports per-update errors; an empty list means every
// update was applied.
type TableWriteResponse struct {
	Errors []*WriteError `json:"errors,omitempty"`
}

type WriteError struct {
	Index   int    `json:"index"`
	Message string `json:"message,omitempty"`
}

// TableEntry is a match-action table entry. Match and action data values are
// fixed-width big-endian byte strings.
type TableEntry struct {
	TableID uint32        `json:"table_id"`
	Match   []*FieldMatch `json:"match,omitempty"`
	Action  *TableAction  `json:"action"`
}

// FieldMatch holds exactly one of the match kinds.
type FieldMatch struct {
	FieldID uint32      `json:"field_id"`
	Exact   *ExactMatch `json:"exact,omitempty"`
	LPM     *LPMMatch   `json:"lpm,omitempty"`
}

type ExactMatch struct {
	Value []byte `json:"value"`
}

type LPMMatch struct {
	Value     []byte `json:"value"`
	PrefixLen int32  `json:"prefix_len"`
}

type TableAction struct {
	ActionID uint32         `json:"action_id"`
	Params   []*ActionParam `json:"params,omitempty"`
}

type ActionParam struct {
	ParamID uint32 `json:"param_id"`
	Value   []byte `json:"value"`
}

// CounterReadRequest asks the device for the current values of the listed
// counters.
type CounterReadRequest struct {
	DeviceID   uint64   `json:"device_id"`
	CounterIDs []uint32 `json:"counter_ids"`
}

type CounterReadResponse struct {
	Entries []*CounterEntry `json:"entries,omitempty"`
}

type CounterEntry struct {
	CounterID uint32       `json:"counter_id"`
	Index     uint64       `json:"index"`
	Data      *CounterData `json:"data"`
}

type CounterData struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// UpdateStartRequest begins an atomic pipeline swap on the device.
type UpdateStartRequest struct {
	DeviceID   uint64 `json:"device_id"`
	Pipeline   []byte `json:"pipeline"`
	DeviceData []byte `json:"device_data,omitempty"`
}

// UpdateEndRequest commits a pipeline swap started with UpdateStartRequest.
type UpdateEndRequest struct {
	DeviceID uint64 `json:"device_id"`
}

// PacketOut is the controller-to-device half of the packet stream: either a
// stream init announcement or a packet to egress.
type PacketOut struct {
	Init   *StreamInit `json:"init,omitempty"`
	Packet *Packet     `json:"packet,omitempty"`
}

type StreamInit struct {
	DeviceID uint64 `json:"device_id"`
}

// PacketIn is a punted packet notification from the device.
type PacketIn struct {
	Packet *Packet `json:"packet"`
}

type Packet struct {
	Payload []byte `json:"payload"`
}
