package vrt

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/i5heu/GoVaronT/pkg/padded"
)

// Stream signals returned by Consumer.Next. They are out-of-band
// results, not failures.
var (
	// ErrEOF reports that every producer has signalled end of stream
	// and the consumer has drained all values before it.
	ErrEOF = errors.New("vrt: end of stream")
	// ErrFlush reports that a producer requested a checkpoint.
	ErrFlush = errors.New("vrt: flush")
)

// MaxValueCount caps the ring size. Beyond this the claimed/consumed
// cursor distance starts eating into the modular comparison headroom.
const MaxValueCount = 1 << 30

// Queue freeze states. The topology (producers, consumers,
// dependencies) is frozen by whichever actor performs the first
// hot-path call.
const (
	stateOpen int32 = iota
	stateStarting
	stateRunning
	stateFailed
)

// Queue is a fixed-capacity ring of preallocated values coordinated
// entirely by sequence-number arbitration. Producers claim IDs, write
// the value at id&mask, and publish; consumers follow the published
// cursor and release slots by advancing their own cursors. There is no
// lock anywhere: the cursors are the whole protocol.
type Queue struct {
	name      string
	valueType ValueType
	values    []Value
	mask      ValueID

	// lastClaimed is the shared claim ticket. It is only contended
	// when more than one producer is attached; a lone producer tracks
	// its claims privately.
	lastClaimed padded.Int64

	// cursor is the ID of the most recently published value. It
	// advances through every ID with no gaps, even with many
	// producers.
	cursor padded.Int64

	producers []*Producer
	consumers []*Consumer

	state     int32
	freezeErr error
}

// New allocates a queue managing valueCount values of the given type.
// valueCount is rounded up to a power of two, minimum 2; counts above
// MaxValueCount are rejected. Every slot is preallocated here and
// reused for the queue's whole lifetime.
func New(name string, valueType ValueType, valueCount uint) (*Queue, error) {
	if valueType == nil {
		return nil, fmt.Errorf("vrt: queue %q needs a value type", name)
	}
	if valueCount > MaxValueCount {
		return nil, fmt.Errorf("vrt: queue %q: value count %d exceeds %d", name, valueCount, MaxValueCount)
	}
	count := roundToPow2(valueCount)

	q := &Queue{
		name:      name,
		valueType: valueType,
		values:    make([]Value, count),
		mask:      ValueID(count - 1),
	}
	for i := range q.values {
		v, err := valueType.NewValue()
		if err != nil {
			for j := 0; j < i; j++ {
				valueType.FreeValue(q.values[j])
			}
			return nil, fmt.Errorf("vrt: queue %q: allocating value %d: %w", name, i, err)
		}
		v.Header().ID = initialID
		v.Header().Special = SpecialNone
		q.values[i] = v
	}
	q.lastClaimed.Set(int64(initialID))
	q.cursor.Set(int64(initialID))
	return q, nil
}

// roundToPow2 rounds n up to the next power of two, minimum 2.
func roundToPow2(n uint) uint {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Size returns the number of value slots in the ring.
func (q *Queue) Size() int { return len(q.values) }

// Get returns the slot holding the given ID. The same physical value
// is reused by every ID that shares id&mask; callers must hold the
// sequence-number right to touch it.
func (q *Queue) Get(id ValueID) Value {
	return q.values[id&q.mask]
}

// Cursor returns the ID of the most recently published value. Involves
// an acquire load, so call it sparingly.
func (q *Queue) Cursor() ValueID {
	return ValueID(q.cursor.Get())
}

// setCursor publishes a new cursor with release semantics. Internal:
// only producer publish strategies advance it.
func (q *Queue) setCursor(id ValueID) {
	q.cursor.Set(int64(id))
}

// Free tears the queue down: attached producers and consumers first,
// then every value through the value type. Not safe to call while any
// actor is still running.
func (q *Queue) Free() {
	for _, p := range q.producers {
		p.free()
	}
	q.producers = nil
	for _, c := range q.consumers {
		c.free()
	}
	q.consumers = nil
	for i, v := range q.values {
		if v != nil {
			q.valueType.FreeValue(v)
			q.values[i] = nil
		}
	}
}

// addProducer registers p. The registry is only mutable before the
// first hot-path call.
func (q *Queue) addProducer(p *Producer) error {
	if atomic.LoadInt32(&q.state) != stateOpen {
		return fmt.Errorf("vrt: queue %q already started; cannot attach producer %q", q.name, p.name)
	}
	p.index = len(q.producers)
	q.producers = append(q.producers, p)
	return nil
}

// addConsumer registers c under the same rules as addProducer.
func (q *Queue) addConsumer(c *Consumer) error {
	if atomic.LoadInt32(&q.state) != stateOpen {
		return fmt.Errorf("vrt: queue %q already started; cannot attach consumer %q", q.name, c.name)
	}
	c.index = len(q.consumers)
	q.consumers = append(q.consumers, c)
	return nil
}

// start freezes the topology exactly once. The winning caller runs
// freeze; everyone else spins until the state settles. After the first
// call this is a single acquire load.
func (q *Queue) start() error {
	for {
		switch atomic.LoadInt32(&q.state) {
		case stateRunning:
			return nil
		case stateFailed:
			return q.freezeErr
		case stateOpen:
			if atomic.CompareAndSwapInt32(&q.state, stateOpen, stateStarting) {
				if err := q.freeze(); err != nil {
					q.freezeErr = err
					atomic.StoreInt32(&q.state, stateFailed)
					return err
				}
				atomic.StoreInt32(&q.state, stateRunning)
				return nil
			}
		case stateStarting:
			runtime.Gosched()
		}
	}
}

// freeze validates the topology and commits it: producer claim/publish
// strategies depend on the final producer count, consumer dependency
// lists are snapshotted and cycle-checked.
func (q *Queue) freeze() error {
	if len(q.producers) == 0 {
		return fmt.Errorf("vrt: queue %q has no producers", q.name)
	}
	if len(q.consumers) == 0 {
		return fmt.Errorf("vrt: queue %q has no consumers", q.name)
	}

	var strategy claimStrategy = multiProducer{}
	if len(q.producers) == 1 {
		strategy = singleProducer{}
	}
	for _, p := range q.producers {
		p.strategy = strategy
		if p.batchSize == 0 {
			p.batchSize = defaultBatchSize(len(q.values))
		}
		if p.batchSize > ValueID(len(q.values)) {
			p.batchSize = ValueID(len(q.values))
		}
	}

	for _, c := range q.consumers {
		c.deps = append([]*Consumer(nil), c.deps...)
	}
	if err := q.checkDependencyCycles(); err != nil {
		return err
	}
	return nil
}

// defaultBatchSize picks the batch for producers that did not ask for
// one: a quarter of the ring, at least 1.
func defaultBatchSize(size int) ValueID {
	b := ValueID(size / 4)
	if b < 1 {
		b = 1
	}
	return b
}

// checkDependencyCycles walks the consumer dependency graph; a cycle
// would deadlock every consumer on it, so it is a freeze-time error.
func (q *Queue) checkDependencyCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	colors := make([]int, len(q.consumers))

	var visit func(c *Consumer) error
	visit = func(c *Consumer) error {
		switch colors[c.index] {
		case visiting:
			return fmt.Errorf("vrt: queue %q: dependency cycle through consumer %q", q.name, c.name)
		case done:
			return nil
		}
		colors[c.index] = visiting
		for _, d := range c.deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		colors[c.index] = done
		return nil
	}

	for _, c := range q.consumers {
		if err := visit(c); err != nil {
			return err
		}
	}
	return nil
}

// stateOf reads the freeze state with acquire semantics.
func stateOf(q *Queue) int32 {
	return atomic.LoadInt32(&q.state)
}

// minConsumerCursor returns the modular minimum over every consumer
// cursor: the horizon behind which no slot is live any more.
func (q *Queue) minConsumerCursor() ValueID {
	min := q.consumers[0].Cursor()
	for _, c := range q.consumers[1:] {
		min = modMin(min, c.Cursor())
	}
	return min
}
