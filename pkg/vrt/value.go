package vrt

// ValueID names a logical position in the stream. IDs increase
// monotonically for the lifetime of a queue and are compared on the
// modular ring of int64, so they survive wraparound as long as no two
// live cursors are more than half the ID range apart.
type ValueID int64

// initialID is the cursor value whose successor is the first valid ID.
const initialID ValueID = -1

// ModLt reports a < b in modular order. Every cursor comparison in
// this package must go through ModLt/ModLe; a raw < breaks at
// wraparound.
func ModLt(a, b ValueID) bool {
	return b-a > 0
}

// ModLe reports a <= b in modular order.
func ModLe(a, b ValueID) bool {
	return b-a >= 0
}

// modMin returns the smaller of a and b in modular order.
func modMin(a, b ValueID) ValueID {
	if ModLt(a, b) {
		return a
	}
	return b
}

// Special marks a value slot as carrying an out-of-band token instead
// of (or alongside) a payload.
type Special int32

const (
	// SpecialNone marks an ordinary payload value.
	SpecialNone Special = iota
	// SpecialEOF signals that the producer that published it is done.
	SpecialEOF
	// SpecialHole marks a published slot that consumers must skip.
	SpecialHole
	// SpecialFlush asks consumers to surface a checkpoint.
	SpecialFlush
)

// Header is the bookkeeping part of every value managed by a queue:
// the sequence ID currently occupying the slot and its special token.
// Concrete value types keep a Header next to their payload fields and
// return it from their own Header method. Embedding Header anonymously
// does not satisfy Value: the embedded field, named Header, hides the
// promoted method.
type Header struct {
	ID      ValueID
	Special Special
}

// Header returns h itself, so *Header on its own satisfies Value.
func (h *Header) Header() *Header { return h }

// Value is the contract between a queue and the payloads it manages.
// The queue owns every value for its whole lifetime; producers mutate
// the value they currently hold a claim on, consumers read the value
// they were handed until their next call.
type Value interface {
	Header() *Header
}

// ValueType is the allocate/free capability pair a queue uses to
// populate its ring. It is exercised only at construction and
// teardown, never on the hot path.
type ValueType interface {
	// TypeID identifies the concrete type for sanity checks.
	TypeID() uint32
	// NewValue allocates one instance.
	NewValue() (Value, error)
	// FreeValue releases an instance created by NewValue.
	FreeValue(Value)
}
