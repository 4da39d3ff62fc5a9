package main

import (
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"

	"github.com/i5heu/GoVaronT/pkg/intvalue"
	"github.com/i5heu/GoVaronT/pkg/vrt"
	"github.com/i5heu/GoVaronT/pkg/yield"
)

// Test size configuration via environment variables:
//
//	FIFO_TEST_SIZE     - values per producer in integrity tests (default: 10000)
//	FIFO_PRODUCERS     - number of producers in multi-producer tests (default: 4; the stress test uses twice as many)
//	FIFO_ENABLE_STRESS - enable the large stress test (default: false)

// getEnvInt reads an integer from an environment variable with a
// default value.
func getEnvInt(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable with a
// default value.
func getEnvBool(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getTestSize() int {
	return getEnvInt("FIFO_TEST_SIZE", 10000)
}

func getProducerCount() int {
	return getEnvInt("FIFO_PRODUCERS", 4)
}

func stressTestsEnabled() bool {
	return getEnvBool("FIFO_ENABLE_STRESS", false)
}

// runIntegrity drives producers goroutines through a shared queue and
// returns, per consumer, the payloads in delivery order.
func runIntegrity(t *testing.T, producers, consumers, capacity, perProducer int, skips bool) [][]int64 {
	t.Helper()

	q, err := vrt.New(t.Name(), intvalue.Type(), uint(capacity))
	require.NoError(t, err)
	defer q.Free()

	ps := make([]*vrt.Producer, producers)
	for i := range ps {
		ps[i], err = vrt.NewProducer("p", 0, q, yield.Threaded())
		require.NoError(t, err)
	}
	cs := make([]*vrt.Consumer, consumers)
	for i := range cs {
		cs[i], err = vrt.NewConsumer("c", q, yield.Threaded())
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(producers + consumers)

	for tag, p := range ps {
		go func(tag int64, p *vrt.Producer) {
			defer wg.Done()
			for i := int64(0); i < int64(perProducer); i++ {
				v, err := p.Claim()
				if err != nil {
					t.Error(err)
					return
				}
				if skips && fastrand.Uint32n(5) == 0 {
					if err := p.Skip(); err != nil {
						t.Error(err)
						return
					}
					i--
					continue
				}
				intvalue.Set(v, tag<<40|i)
				if err := p.Publish(); err != nil {
					t.Error(err)
					return
				}
			}
			if err := p.EOF(); err != nil {
				t.Error(err)
			}
		}(int64(tag), p)
	}

	delivered := make([][]int64, consumers)
	for i, c := range cs {
		go func(i int, c *vrt.Consumer) {
			defer wg.Done()
			for {
				v, err := c.Next()
				switch err {
				case nil:
					delivered[i] = append(delivered[i], intvalue.Get(v))
				case vrt.ErrFlush:
				case vrt.ErrEOF:
					return
				default:
					t.Error(err)
					return
				}
			}
		}(i, c)
	}

	wg.Wait()
	return delivered
}

// checkStreams verifies that one consumer's delivery contains every
// per-producer stream complete, in order, with no duplicates.
func checkStreams(t *testing.T, payloads []int64, producers, perProducer int) {
	t.Helper()
	require.Len(t, payloads, producers*perProducer)
	next := make([]int64, producers)
	for _, payload := range payloads {
		tag := payload >> 40
		seq := payload & (1<<40 - 1)
		require.Less(t, tag, int64(producers))
		require.Equal(t, next[tag], seq, "producer %d stream out of order", tag)
		next[tag]++
	}
	for tag, n := range next {
		require.EqualValues(t, perProducer, n, "producer %d stream incomplete", tag)
	}
}

func TestStrictFIFOSingleProducer(t *testing.T) {
	size := getTestSize()
	streams := runIntegrity(t, 1, 1, 1024, size, false)
	checkStreams(t, streams[0], 1, size)
}

func TestFIFOIntegrityMultiProducer(t *testing.T) {
	size := getTestSize()
	producers := getProducerCount()
	streams := runIntegrity(t, producers, 1, 256, size, false)
	checkStreams(t, streams[0], producers, size)
}

func TestFIFOIntegrityMultiConsumer(t *testing.T) {
	size := getTestSize() / 2
	producers := getProducerCount()
	streams := runIntegrity(t, producers, 3, 128, size, false)
	for _, payloads := range streams {
		checkStreams(t, payloads, producers, size)
	}
}

func TestFIFOIntegrityWithRandomSkips(t *testing.T) {
	size := getTestSize() / 2
	streams := runIntegrity(t, 2, 1, 64, size, true)
	checkStreams(t, streams[0], 2, size)
}

func TestFIFOIntegrityTinyRing(t *testing.T) {
	streams := runIntegrity(t, 2, 2, 2, 2000, false)
	for _, payloads := range streams {
		checkStreams(t, payloads, 2, 2000)
	}
}

func TestFIFOIntegrityStress(t *testing.T) {
	if !stressTestsEnabled() {
		t.Skip("Stress test disabled; set FIFO_ENABLE_STRESS=1 to enable")
	}
	size := getEnvInt("FIFO_STRESS_SIZE", 100000)
	producers := getProducerCount() * 2
	streams := runIntegrity(t, producers, 2, 1024, size, false)
	for _, payloads := range streams {
		checkStreams(t, payloads, producers, size)
	}
}
