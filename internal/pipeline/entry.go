package pipeline

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/p4net/routerd/internal/devicepb"
)

// EncodeUint16 encodes v as the fixed-width big-endian byte string the
// device expects for 16-bit match and action values.
func EncodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// EncodeUint32 encodes v as the fixed-width big-endian byte string the
// device expects for 32-bit match and action values.
func EncodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// EncodeAddr4 encodes an IPv4 address as a 4-byte big-endian value.
func EncodeAddr4(addr netip.Addr) []byte {
	b := addr.As4()
	return b[:]
}

// Entry accumulates match fields and an action for one table entry,
// resolving symbolic names through the description as it goes. The first
// resolution failure is kept and reported by Build.
type Entry struct {
	desc   *Description
	action string
	entry  *devicepb.TableEntry
	err    error
}

// NewEntry starts an entry for the named table.
func NewEntry(desc *Description, table string) *Entry {
	e := &Entry{desc: desc, entry: &devicepb.TableEntry{}}
	id, err := desc.TableID(table)
	if err != nil {
		e.err = err
		return e
	}
	e.entry.TableID = id
	return e
}

// MatchExact adds an exact match on the named field.
func (e *Entry) MatchExact(field string, value []byte) *Entry {
	if e.err != nil {
		return e
	}
	id, err := e.desc.FieldID(field)
	if err != nil {
		e.err = err
		return e
	}
	e.entry.Match = append(e.entry.Match, &devicepb.FieldMatch{
		FieldID: id,
		Exact:   &devicepb.ExactMatch{Value: value},
	})
	return e
}

// MatchLPM adds a longest-prefix match on the named field.
func (e *Entry) MatchLPM(field string, value []byte, prefixLen int32) *Entry {
	if e.err != nil {
		return e
	}
	id, err := e.desc.FieldID(field)
	if err != nil {
		e.err = err
		return e
	}
	e.entry.Match = append(e.entry.Match, &devicepb.FieldMatch{
		FieldID: id,
		LPM:     &devicepb.LPMMatch{Value: value, PrefixLen: prefixLen},
	})
	return e
}

// Action sets the entry action. It must be called before Param.
func (e *Entry) Action(name string) *Entry {
	if e.err != nil {
		return e
	}
	id, err := e.desc.ActionID(name)
	if err != nil {
		e.err = err
		return e
	}
	e.action = name
	e.entry.Action = &devicepb.TableAction{ActionID: id}
	return e
}

// Param appends an action parameter. Parameter order is preserved on the
// wire.
func (e *Entry) Param(name string, value []byte) *Entry {
	if e.err != nil {
		return e
	}
	if e.entry.Action == nil {
		e.err = fmt.Errorf("param %q set before action", name)
		return e
	}
	id, err := e.desc.ActionParamID(e.action, name)
	if err != nil {
		e.err = err
		return e
	}
	e.entry.Action.Params = append(e.entry.Action.Params, &devicepb.ActionParam{
		ParamID: id,
		Value:   value,
	})
	return e
}

// Build returns the assembled entry or the first resolution error.
func (e *Entry) Build() (*devicepb.TableEntry, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.entry.Action == nil {
		return nil, fmt.Errorf("table entry without action")
	}
	return e.entry, nil
}
