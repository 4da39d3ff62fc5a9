package vrt

import (
	"fmt"

	"github.com/i5heu/GoVaronT/pkg/yield"
)

// Stats is a snapshot of an actor's progress counters. The fields are
// written only by the owning goroutine, so reading them while the
// actor runs gives a torn but harmless view.
type Stats struct {
	// Batches is the number of claim or availability round-trips.
	Batches uint64
	// Yields is the number of back-off calls while stalled.
	Yields uint64
}

// Producer feeds values into a queue. It claims a contiguous batch of
// IDs, hands the slots to the caller one at a time for mutation, and
// publishes each in order. A producer belongs to exactly one
// goroutine.
type Producer struct {
	queue *Queue
	index int
	name  string

	// lastProducedID is the ID most recently handed to the caller;
	// lastClaimedID is the end of the currently reserved batch. The
	// claimed ID never trails the produced one.
	lastProducedID ValueID
	lastClaimedID  ValueID

	batchSize ValueID
	strategy  claimStrategy
	yield     yield.Strategy

	eofSent bool

	batchCount uint64
	yieldCount uint64
}

// NewProducer attaches a producer to q. batchSize is the number of IDs
// reserved per claim round-trip; 0 selects a default derived from the
// queue size. A nil yield strategy defaults to yield.Threaded. The
// queue owns the producer once attached.
func NewProducer(name string, batchSize uint, q *Queue, ys yield.Strategy) (*Producer, error) {
	if q == nil {
		return nil, fmt.Errorf("vrt: producer %q needs a queue", name)
	}
	if ys == nil {
		ys = yield.Threaded()
	}
	p := &Producer{
		queue:          q,
		name:           name,
		lastProducedID: initialID,
		lastClaimedID:  initialID,
		batchSize:      ValueID(batchSize),
		yield:          ys,
	}
	if err := q.addProducer(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the producer's name.
func (p *Producer) Name() string { return p.name }

// Report returns the producer's batch and yield counters.
func (p *Producer) Report() Stats {
	return Stats{Batches: p.batchCount, Yields: p.yieldCount}
}

// free releases producer-owned resources. Called by Queue.Free.
func (p *Producer) free() {
	if p.yield != nil {
		p.yield.Free()
		p.yield = nil
	}
}

// Claim reserves the next value and returns its slot for mutation. The
// caller owns the slot until the matching Publish (or Skip). Claim
// blocks, through the yield strategy, while the ring is full: an ID k
// is only handed out once every consumer cursor has passed k-N.
//
// Claiming after EOF is a contract violation and panics.
func (p *Producer) Claim() (Value, error) {
	if err := p.queue.start(); err != nil {
		return nil, err
	}
	if p.eofSent {
		panic(fmt.Sprintf("vrt: producer %q: claim after EOF", p.name))
	}
	if p.lastProducedID == p.lastClaimedID {
		if err := p.strategy.claim(p.queue, p); err != nil {
			return nil, err
		}
		p.batchCount++
	}
	p.lastProducedID++
	v := p.queue.Get(p.lastProducedID)
	h := v.Header()
	h.ID = p.lastProducedID
	h.Special = SpecialNone
	return v, nil
}

// Publish makes the most recently claimed value visible to consumers.
// After Publish returns the caller has no rights to the value, not
// even for reading.
func (p *Producer) Publish() error {
	return p.strategy.publish(p.queue, p, p.lastProducedID)
}

// Skip publishes the currently claimed value as a hole. Consumers
// treat a hole as present but ignored; the published cursor still
// advances through it.
func (p *Producer) Skip() error {
	p.queue.Get(p.lastProducedID).Header().Special = SpecialHole
	return p.Publish()
}

// EOF signals that this producer is done. It publishes an EOF value,
// then drains any remainder of the claimed batch as holes so the
// published cursor can move past the reservation. Further claims on
// this producer panic.
func (p *Producer) EOF() error {
	v, err := p.Claim()
	if err != nil {
		return err
	}
	v.Header().Special = SpecialEOF
	if err := p.Publish(); err != nil {
		return err
	}
	for p.lastProducedID != p.lastClaimedID {
		v, err := p.Claim()
		if err != nil {
			return err
		}
		v.Header().Special = SpecialHole
		if err := p.Publish(); err != nil {
			return err
		}
	}
	p.eofSent = true
	return nil
}

// Flush publishes a checkpoint value. Every consumer surfaces it as
// ErrFlush as soon as it reaches the checkpoint's ID.
func (p *Producer) Flush() error {
	v, err := p.Claim()
	if err != nil {
		return err
	}
	v.Header().Special = SpecialFlush
	return p.Publish()
}

// waitForSlot stalls until the slot for target may be reused: every
// consumer must have released target-N. Only delays, never allows
// unsafe reuse, even when consumer cursors lag their true progress.
func (p *Producer) waitForSlot(q *Queue, target ValueID) error {
	wrap := target - ValueID(q.Size())
	first := true
	for {
		if ModLe(wrap, q.minConsumerCursor()) {
			return nil
		}
		if err := p.yield.Yield(first, q.name, p.name); err != nil {
			return err
		}
		first = false
		p.yieldCount++
	}
}

// claimStrategy is the claim/publish pairing committed at freeze. With
// one producer the shared claim ticket is bypassed entirely; with
// several, claims go through a CAS loop and publishes are serialized
// behind the published cursor.
type claimStrategy interface {
	claim(q *Queue, p *Producer) error
	publish(q *Queue, p *Producer, id ValueID) error
}

type singleProducer struct{}

func (singleProducer) claim(q *Queue, p *Producer) error {
	target := p.lastClaimedID + p.batchSize
	if err := p.waitForSlot(q, target); err != nil {
		return err
	}
	p.lastClaimedID = target
	return nil
}

func (singleProducer) publish(q *Queue, p *Producer, id ValueID) error {
	q.setCursor(id)
	return nil
}

type multiProducer struct{}

func (multiProducer) claim(q *Queue, p *Producer) error {
	for {
		last := ValueID(q.lastClaimed.Get())
		target := last + p.batchSize
		if q.lastClaimed.CompareAndSwap(int64(last), int64(target)) {
			p.lastProducedID = last
			p.lastClaimedID = target
			return p.waitForSlot(q, target)
		}
	}
}

// publish waits until the predecessor's value is published, then
// release-stores its own ID. This is what keeps the published cursor
// gapless with many producers.
func (multiProducer) publish(q *Queue, p *Producer, id ValueID) error {
	first := true
	for ValueID(q.cursor.Get()) != id-1 {
		if err := p.yield.Yield(first, q.name, p.name); err != nil {
			return err
		}
		first = false
		p.yieldCount++
	}
	q.setCursor(id)
	return nil
}
