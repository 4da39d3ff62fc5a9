// Package intvalue provides the integer-payload value type used by the
// benchmark driver and the test suites.
package intvalue

import "github.com/i5heu/GoVaronT/pkg/vrt"

// TypeID identifies this value type.
const TypeID uint32 = 0x1be56e64

// Value is a queue-managed value carrying a single int64 payload.
type Value struct {
	hdr vrt.Header
	N   int64
}

// Header returns the value's bookkeeping header, satisfying vrt.Value.
func (v *Value) Header() *vrt.Header { return &v.hdr }

// Get extracts the payload from a value delivered by a consumer. It
// panics if the value was allocated by a different value type.
func Get(v vrt.Value) int64 {
	return v.(*Value).N
}

// Set writes the payload into a claimed value.
func Set(v vrt.Value, n int64) {
	v.(*Value).N = n
}

// Type returns the value-type capability for int64 payloads.
func Type() vrt.ValueType {
	return valueType{}
}

type valueType struct{}

func (valueType) TypeID() uint32 { return TypeID }

func (valueType) NewValue() (vrt.Value, error) {
	return &Value{}, nil
}

func (valueType) FreeValue(vrt.Value) {}
