package comm

import "encoding/binary"

// RangeKind tells how the bounds of a Range are compared.
type RangeKind uint8

// Range kinds.
const (
	RangeNone RangeKind = iota
	RangeUnsigned
	RangeSigned
)

// Range is the legal interval of a parameter value. Min and Max hold
// two's complement bit patterns for RangeSigned.
type Range struct {
	Kind RangeKind
	Min  uint32
	Max  uint32
}

// NoRange leaves the value unchecked.
var NoRange = Range{}

// Unsigned creates an unsigned range.
func Unsigned(min, max uint32) Range {
	return Range{Kind: RangeUnsigned, Min: min, Max: max}
}

// Signed creates a signed range.
func Signed(min, max int32) Range {
	return Range{Kind: RangeSigned, Min: uint32(min), Max: uint32(max)}
}

// LegacyRange decodes the bounds as declared in firmware parameter
// tables: both zero means unchecked and min above max means signed.
func LegacyRange(min, max uint32) Range {
	switch {
	case min == 0 && max == 0:
		return NoRange
	case min > max:
		return Range{Kind: RangeSigned, Min: min, Max: max}
	default:
		return Unsigned(min, max)
	}
}

// bounds returns the bounds as seen by a value of size bytes.
func (r Range) bounds(size int) (lo, hi int64) {
	if r.Kind == RangeSigned {
		return int64(signExtend(truncate(r.Min, size), size)), int64(signExtend(truncate(r.Max, size), size))
	}
	return int64(r.Min), int64(r.Max)
}

// Parameter is a remotely readable and possibly writable value.
type Parameter struct {
	ID    byte
	Range Range
	// Step is the increment advertised to hosts. Zero makes the
	// parameter read-only.
	Step  uint32
	Value Cell
	// OnUpdate is invoked after a successful remote write.
	OnUpdate func()
}

// Size returns the value size in bytes.
func (p *Parameter) Size() int {
	return p.Value.Size()
}

// Writable reports whether remote writes are accepted.
func (p *Parameter) Writable() bool {
	return p.Step != 0
}

// RangeCheck clamps the current value into the range in place.
// Values larger than 4 bytes and parameters without range are left as is.
func (p *Parameter) RangeCheck() {
	size := p.Size()
	if size > MaxValueSize || p.Range.Kind == RangeNone {
		return
	}
	var buf [4]byte
	p.Value.Load(buf[:size])
	raw := binary.LittleEndian.Uint32(buf[:])
	v := int64(raw)
	if p.Range.Kind == RangeSigned {
		v = int64(signExtend(raw, size))
	}
	lo, hi := p.Range.bounds(size)
	switch {
	case v < lo:
		v = lo
	case v > hi:
		v = hi
	default:
		return
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	p.Value.Store(buf[:size])
}

// describe appends size, min, max and step as returned to hosts.
func (p *Parameter) describe(b []byte) []byte {
	size := p.Size()
	b = append(b, byte(size))
	if size > MaxValueSize {
		return b
	}
	b = putValue(b, p.Range.Min, size)
	b = putValue(b, p.Range.Max, size)
	return putValue(b, p.Step, size)
}

// DataItem is a read-only real-time value which can be streamed.
type DataItem struct {
	ID    byte
	Value Cell
}

// Size returns the value size in bytes.
func (d *DataItem) Size() int {
	return d.Value.Size()
}

// Registry is the immutable table of parameters and data items of a
// target.
type Registry struct {
	TargetType byte
	Parameters []*Parameter
	DataItems  []*DataItem

	dataItemLimit int
}

// NewRegistry validates the tables and creates a Registry.
func NewRegistry(targetType byte, params []*Parameter, items []*DataItem) (*Registry, error) {
	// the largest responses are the parameter list, a value and the
	// telemetry packet, each with a 3 byte header and a checksum.
	const maxBody = MaxPacketSize - HeaderSize - 2
	if len(params) > maxBody {
		return nil, &RegistryError{Reason: "too many parameters"}
	}
	var seen [256]bool
	for _, p := range params {
		if seen[p.ID] {
			return nil, &RegistryError{ID: p.ID, Reason: "duplicated parameter"}
		}
		seen[p.ID] = true
		if p.Value == nil || p.Size() < 1 {
			return nil, &RegistryError{ID: p.ID, Reason: "parameter without value"}
		}
		if p.Size() > maxBody {
			return nil, &RegistryError{ID: p.ID, Reason: "parameter value too large"}
		}
		if size := p.Size(); size <= MaxValueSize && p.Range.Kind != RangeNone {
			if lo, hi := p.Range.bounds(size); lo > hi {
				return nil, &RegistryError{ID: p.ID, Reason: "empty range"}
			}
		}
	}
	if len(items)*2 > maxBody {
		return nil, &RegistryError{Reason: "too many data items"}
	}
	seen = [256]bool{}
	reg := &Registry{TargetType: targetType, Parameters: params, DataItems: items}
	total := 0
	for _, d := range items {
		if seen[d.ID] {
			return nil, &RegistryError{ID: d.ID, Reason: "duplicated data item"}
		}
		seen[d.ID] = true
		if d.Value == nil || d.Size() < 1 || d.Size() > MaxValueSize {
			return nil, &RegistryError{ID: d.ID, Reason: "data item must be 1 to 4 bytes"}
		}
		total += d.Size()
		if int(d.ID) >= reg.dataItemLimit {
			reg.dataItemLimit = int(d.ID) + 1
		}
	}
	if total > maxBody+1 {
		return nil, &RegistryError{Reason: "data items exceed a telemetry packet"}
	}
	return reg, nil
}

// MustNewRegistry is NewRegistry which panics on error.
func MustNewRegistry(targetType byte, params []*Parameter, items []*DataItem) *Registry {
	reg, err := NewRegistry(targetType, params, items)
	if err != nil {
		panic(err)
	}
	return reg
}

// FindParameter returns the index of the first parameter with id.
func (r *Registry) FindParameter(id byte) (int, bool) {
	for i, p := range r.Parameters {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Parameter returns the parameter with id or nil.
func (r *Registry) Parameter(id byte) *Parameter {
	if i, ok := r.FindParameter(id); ok {
		return r.Parameters[i]
	}
	return nil
}

// DataItemLimit is one above the highest data item ID. Enable and
// disable requests at or beyond the limit are ignored.
func (r *Registry) DataItemLimit() int {
	return r.dataItemLimit
}
