// Package pipeline resolves symbolic pipeline object names (tables, actions,
// fields, action parameters, counters) to the numeric identifiers the device
// expects, and builds match-action table entries from them.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Format identifies the encoding of a raw pipeline configuration.
type Format int

const (
	// FormatJSON is the pipeline configuration produced by the compiler
	// toolchain.
	FormatJSON Format = iota
)

// ErrUnknownName is wrapped by resolution errors. An unknown name signals a
// mismatch between the controller and the pipeline running on the device and
// is fatal for the process.
var ErrUnknownName = errors.New("unknown pipeline object name")

// Description is the resolved identifier mapping of one pipeline
// configuration. Exactly one description is active at a time; it is replaced
// wholesale during a pipeline reload.
type Description struct {
	raw      []byte
	tables   map[string]uint32
	actions  map[string]actionInfo
	fields   map[string]uint32
	counters map[string]uint32
}

type actionInfo struct {
	id     uint32
	params map[string]uint32
}

type rawObject struct {
	Name string `json:"name"`
	ID   uint32 `json:"id"`
}

type rawAction struct {
	Name   string      `json:"name"`
	ID     uint32      `json:"id"`
	Params []rawObject `json:"params"`
}

type rawConfig struct {
	Tables   []rawObject `json:"tables"`
	Actions  []rawAction `json:"actions"`
	Fields   []rawObject `json:"fields"`
	Counters []rawObject `json:"counters"`
}

// Load parses and validates a raw pipeline configuration.
func Load(raw []byte, format Format) (*Description, error) {
	if format != FormatJSON {
		return nil, fmt.Errorf("unsupported pipeline config format %d", format)
	}

	var cfg rawConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	desc := &Description{
		raw:      raw,
		tables:   make(map[string]uint32, len(cfg.Tables)),
		actions:  make(map[string]actionInfo, len(cfg.Actions)),
		fields:   make(map[string]uint32, len(cfg.Fields)),
		counters: make(map[string]uint32, len(cfg.Counters)),
	}

	for _, t := range cfg.Tables {
		if err := insert(desc.tables, "table", t); err != nil {
			return nil, err
		}
	}
	for _, f := range cfg.Fields {
		if err := insert(desc.fields, "field", f); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Counters {
		if err := insert(desc.counters, "counter", c); err != nil {
			return nil, err
		}
	}
	for _, a := range cfg.Actions {
		if _, ok := desc.actions[a.Name]; ok {
			return nil, fmt.Errorf("duplicate action name %q", a.Name)
		}
		info := actionInfo{id: a.ID, params: make(map[string]uint32, len(a.Params))}
		for _, p := range a.Params {
			if _, ok := info.params[p.Name]; ok {
				return nil, fmt.Errorf("duplicate param name %q of action %q", p.Name, a.Name)
			}
			info.params[p.Name] = p.ID
		}
		desc.actions[a.Name] = info
	}

	return desc, nil
}

func insert(m map[string]uint32, kind string, obj rawObject) error {
	if _, ok := m[obj.Name]; ok {
		return fmt.Errorf("duplicate %s name %q", kind, obj.Name)
	}
	m[obj.Name] = obj.ID
	return nil
}

// Blob returns the raw configuration bytes, used when (re)assigning the
// pipeline to the device.
func (m *Description) Blob() []byte {
	return m.raw
}

func (m *Description) TableID(name string) (uint32, error) {
	id, ok := m.tables[name]
	if !ok {
		return 0, fmt.Errorf("%w: table %q", ErrUnknownName, name)
	}
	return id, nil
}

func (m *Description) ActionID(name string) (uint32, error) {
	info, ok := m.actions[name]
	if !ok {
		return 0, fmt.Errorf("%w: action %q", ErrUnknownName, name)
	}
	return info.id, nil
}

func (m *Description) ActionParamID(action, name string) (uint32, error) {
	info, ok := m.actions[action]
	if !ok {
		return 0, fmt.Errorf("%w: action %q", ErrUnknownName, action)
	}
	id, ok := info.params[name]
	if !ok {
		return 0, fmt.Errorf("%w: param %q of action %q", ErrUnknownName, name, action)
	}
	return id, nil
}

func (m *Description) FieldID(name string) (uint32, error) {
	id, ok := m.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: field %q", ErrUnknownName, name)
	}
	return id, nil
}

func (m *Description) CounterID(name string) (uint32, error) {
	id, ok := m.counters[name]
	if !ok {
		return 0, fmt.Errorf("%w: counter %q", ErrUnknownName, name)
	}
	return id, nil
}

// CounterNames returns the counter names of this pipeline in sorted order.
func (m *Description) CounterNames() []string {
	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
