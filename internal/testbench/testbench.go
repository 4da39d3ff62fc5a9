// Package testbench runs configured producer/consumer topologies over
// an integer-valued queue and reports what moved through it.
package testbench

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fastrand"

	"github.com/i5heu/GoVaronT/pkg/config"
	"github.com/i5heu/GoVaronT/pkg/intvalue"
	"github.com/i5heu/GoVaronT/pkg/vrt"
	"github.com/i5heu/GoVaronT/pkg/yield"
)

// Options tunes harness behavior beyond the scenario topology.
type Options struct {
	// CountPerProducer switches to count mode: every producer
	// publishes exactly this many values and then EOFs. Zero means
	// timed mode, bounded by the scenario duration.
	CountPerProducer int64

	// SkipEvery makes producers skip roughly one in SkipEvery claims
	// at random. Zero disables skipping.
	SkipEvery uint32

	// ConsumerDelayMax injects a random delay of up to this much per
	// delivered value, to model slow consumers.
	ConsumerDelayMax time.Duration
}

// Result is what a run produced and consumed.
type Result struct {
	Produced  int64 // values published (excluding holes, EOF, flush)
	Skipped   int64 // holes published on purpose
	Delivered int64 // deliveries summed over all consumers
	Flushes   int64 // flush returns summed over all consumers
	Elapsed   time.Duration

	ProducerStats []vrt.Stats
	ConsumerStats []vrt.Stats
}

// StrategyFor maps a scenario yield name to a fresh strategy instance.
// Each actor needs its own: the hybrid strategy carries per-actor
// escalation state.
func StrategyFor(name string) yield.Strategy {
	switch name {
	case "spin":
		return yield.SpinWait()
	case "hybrid":
		return yield.Hybrid()
	default:
		return yield.Threaded()
	}
}

// Run executes one scenario and blocks until every producer has EOFed
// and every consumer has drained. In timed mode producers stop
// claiming once the scenario duration elapses.
func Run(s config.Scenario, opt Options) (Result, error) {
	var res Result

	q, err := vrt.New(s.Name, intvalue.Type(), s.Capacity)
	if err != nil {
		return res, err
	}
	defer q.Free()

	producers := make([]*vrt.Producer, s.Producers)
	for i := range producers {
		p, err := vrt.NewProducer(fmt.Sprintf("prod-%d", i), s.BatchSize, q, StrategyFor(s.Yield))
		if err != nil {
			return res, err
		}
		producers[i] = p
	}

	consumers := make([]*vrt.Consumer, s.Consumers)
	for i := range consumers {
		c, err := vrt.NewConsumer(fmt.Sprintf("cons-%d", i), q, StrategyFor(s.Yield))
		if err != nil {
			return res, err
		}
		if s.Chained && i > 0 {
			if err := c.AddDependency(consumers[i-1]); err != nil {
				return res, err
			}
		}
		consumers[i] = c
	}

	var (
		produced  atomic.Int64
		skipped   atomic.Int64
		delivered atomic.Int64
		flushes   atomic.Int64
		stop      atomic.Bool
	)
	if opt.CountPerProducer == 0 {
		timer := time.AfterFunc(time.Duration(s.Duration), func() { stop.Store(true) })
		defer timer.Stop()
	}

	errCh := make(chan error, s.Producers+s.Consumers)
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(s.Producers + s.Consumers)

	for i, p := range producers {
		go func(tag int64, p *vrt.Producer) {
			defer wg.Done()
			var seq int64
			for {
				if opt.CountPerProducer > 0 {
					if seq == opt.CountPerProducer {
						break
					}
				} else if stop.Load() {
					break
				}
				v, err := p.Claim()
				if err != nil {
					errCh <- err
					return
				}
				if opt.SkipEvery > 0 && fastrand.Uint32n(opt.SkipEvery) == 0 {
					if err := p.Skip(); err != nil {
						errCh <- err
						return
					}
					skipped.Add(1)
					continue
				}
				intvalue.Set(v, tag<<48|seq)
				seq++
				if err := p.Publish(); err != nil {
					errCh <- err
					return
				}
				produced.Add(1)
			}
			if err := p.EOF(); err != nil {
				errCh <- err
			}
		}(int64(i), p)
	}

	for _, c := range consumers {
		go func(c *vrt.Consumer) {
			defer wg.Done()
			for {
				_, err := c.Next()
				switch err {
				case nil:
					delivered.Add(1)
					if opt.ConsumerDelayMax > 0 {
						time.Sleep(time.Duration(fastrand.Uint32n(uint32(opt.ConsumerDelayMax))))
					}
				case vrt.ErrFlush:
					flushes.Add(1)
				case vrt.ErrEOF:
					return
				default:
					errCh <- err
					return
				}
			}
		}(c)
	}

	wg.Wait()
	res.Elapsed = time.Since(start)

	select {
	case err := <-errCh:
		return res, err
	default:
	}

	res.Produced = produced.Load()
	res.Skipped = skipped.Load()
	res.Delivered = delivered.Load()
	res.Flushes = flushes.Load()
	for _, p := range producers {
		res.ProducerStats = append(res.ProducerStats, p.Report())
	}
	for _, c := range consumers {
		res.ConsumerStats = append(res.ConsumerStats, c.Report())
	}
	return res, nil
}
