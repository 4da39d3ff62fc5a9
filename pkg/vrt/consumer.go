package vrt

import (
	"fmt"

	"github.com/i5heu/GoVaronT/pkg/padded"
	"github.com/i5heu/GoVaronT/pkg/yield"
)

// Consumer drains values from a queue in strict ID order. Every
// consumer sees every published value; consumers do not compete.
// Producers watch each consumer's cursor to know when a slot may be
// reused, so the cursor must only ever be touched through its
// accessors. A consumer belongs to exactly one goroutine.
//
// The value returned by Next is only valid until the following Next
// call; the queue will overwrite it. Callers must copy anything they
// want to keep.
type Consumer struct {
	queue *Queue
	index int
	name  string

	// cursor is the last ID this consumer has told the world it is
	// done with.
	cursor padded.Int64

	// lastAvailableID caches the availability horizon so a run of
	// ready values is delivered without any barrier.
	lastAvailableID ValueID

	// currentID is the ID currently held by the caller.
	currentID ValueID

	eofCount int
	done     bool

	deps  []*Consumer
	yield yield.Strategy

	batchCount uint64
	yieldCount uint64
}

// NewConsumer attaches a consumer to q. A nil yield strategy defaults
// to yield.Threaded. The queue owns the consumer once attached.
func NewConsumer(name string, q *Queue, ys yield.Strategy) (*Consumer, error) {
	if q == nil {
		return nil, fmt.Errorf("vrt: consumer %q needs a queue", name)
	}
	if ys == nil {
		ys = yield.Threaded()
	}
	c := &Consumer{
		queue:           q,
		name:            name,
		lastAvailableID: initialID,
		currentID:       initialID,
		yield:           ys,
	}
	c.cursor.Set(int64(initialID))
	if err := q.addConsumer(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the consumer's name.
func (c *Consumer) Name() string { return c.name }

// Cursor returns the last ID this consumer has released. Involves an
// acquire load, so call it sparingly.
func (c *Consumer) Cursor() ValueID {
	return ValueID(c.cursor.Get())
}

// setCursor release-stores the consumer's progress, freeing slots up
// to and including id for reuse.
func (c *Consumer) setCursor(id ValueID) {
	c.cursor.Set(int64(id))
}

// Report returns the consumer's batch and yield counters.
func (c *Consumer) Report() Stats {
	return Stats{Batches: c.batchCount, Yields: c.yieldCount}
}

// free releases consumer-owned resources. Called by Queue.Free.
func (c *Consumer) free() {
	if c.yield != nil {
		c.yield.Free()
		c.yield = nil
	}
}

// AddDependency makes c wait for d: no value is delivered to c until
// d's cursor has passed it. Dependencies must be declared before the
// queue starts and must form a DAG; both are checked (the latter at
// freeze).
func (c *Consumer) AddDependency(d *Consumer) error {
	if d == nil {
		return fmt.Errorf("vrt: consumer %q: nil dependency", c.name)
	}
	if d.queue != c.queue {
		return fmt.Errorf("vrt: consumer %q: dependency %q belongs to a different queue", c.name, d.name)
	}
	if d == c {
		return fmt.Errorf("vrt: consumer %q cannot depend on itself", c.name)
	}
	if stateOf(c.queue) != stateOpen {
		return fmt.Errorf("vrt: queue %q already started; cannot add dependency to %q", c.queue.name, c.name)
	}
	c.deps = append(c.deps, d)
	return nil
}

// Next returns the next value in the stream. It never reports an empty
// queue: when nothing is available it publishes its own progress and
// stalls through the yield strategy. Holes are skipped silently. A
// flush checkpoint is surfaced as ErrFlush; once every producer has
// signalled end of stream, Next returns ErrEOF and the consumer is
// done — calling Next again panics.
func (c *Consumer) Next() (Value, error) {
	if err := c.queue.start(); err != nil {
		return nil, err
	}
	if c.done {
		panic(fmt.Sprintf("vrt: consumer %q: next after EOF", c.name))
	}
	for {
		c.currentID++
		if ModLt(c.lastAvailableID, c.currentID) {
			// End of the available run: publish progress before
			// stalling so producers can reclaim what we are done
			// with.
			c.setCursor(c.currentID - 1)
			if err := c.waitForAvailable(); err != nil {
				c.currentID--
				return nil, err
			}
			c.batchCount++
		}

		v := c.queue.Get(c.currentID)
		switch v.Header().Special {
		case SpecialNone:
			return v, nil
		case SpecialHole:
			c.setCursor(c.currentID)
		case SpecialFlush:
			c.setCursor(c.currentID)
			return nil, ErrFlush
		case SpecialEOF:
			c.eofCount++
			c.setCursor(c.currentID)
			if c.eofCount == len(c.queue.producers) {
				c.done = true
				return nil, ErrEOF
			}
		}
	}
}

// waitForAvailable refreshes the availability horizon — the modular
// minimum of the published cursor and every dependency's cursor — and
// stalls until it covers currentID.
func (c *Consumer) waitForAvailable() error {
	first := true
	for {
		avail := c.queue.Cursor()
		for _, d := range c.deps {
			avail = modMin(avail, d.Cursor())
		}
		c.lastAvailableID = avail
		if ModLe(c.currentID, avail) {
			return nil
		}
		if err := c.yield.Yield(first, c.queue.name, c.name); err != nil {
			return err
		}
		first = false
		c.yieldCount++
	}
}
