package padded

import "sync/atomic"

// Int64 is an atomic int64 cell framed by cache-line sized padding so
// that the hot field never shares a line with a neighbouring cursor.
// Two cursors that are written by different threads must each live in
// their own Int64; false sharing between them would serialize the very
// loops this package exists to keep independent.
type Int64 struct {
	_pad0 [8]uint64
	value int64
	_pad1 [7]uint64
}

// Get loads the cell with acquire semantics: a caller that observes a
// value stored by Set also observes every write the storer made before
// calling Set.
func (c *Int64) Get() int64 {
	return atomic.LoadInt64(&c.value)
}

// Set stores the cell with release semantics.
func (c *Int64) Set(v int64) {
	atomic.StoreInt64(&c.value, v)
}

// CompareAndSwap atomically replaces old with new and reports whether
// it did.
func (c *Int64) CompareAndSwap(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&c.value, old, new)
}

// Add atomically adds delta and returns the new value.
func (c *Int64) Add(delta int64) int64 {
	return atomic.AddInt64(&c.value, delta)
}
