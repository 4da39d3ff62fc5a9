package testbench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoVaronT/pkg/config"
)

func scenario(producers, consumers int) config.Scenario {
	s := config.Scenario{
		Producers: producers,
		Consumers: consumers,
		Capacity:  16,
		Duration:  config.Duration(100 * time.Millisecond),
	}
	s.ApplyDefaults()
	return s
}

func TestRunCountMode(t *testing.T) {
	const perProducer = 1000
	res, err := Run(scenario(2, 2), Options{CountPerProducer: perProducer})
	require.NoError(t, err)

	require.EqualValues(t, 2*perProducer, res.Produced)
	// Every consumer sees the whole stream.
	require.EqualValues(t, 2*2*perProducer, res.Delivered)
	require.Zero(t, res.Skipped)
	require.Len(t, res.ProducerStats, 2)
	require.Len(t, res.ConsumerStats, 2)
}

func TestRunChainedConsumers(t *testing.T) {
	s := scenario(1, 3)
	s.Chained = true
	res, err := Run(s, Options{CountPerProducer: 500})
	require.NoError(t, err)
	require.EqualValues(t, 500, res.Produced)
	require.EqualValues(t, 3*500, res.Delivered)
}

func TestRunWithSkips(t *testing.T) {
	res, err := Run(scenario(1, 1), Options{CountPerProducer: 2000, SkipEvery: 3})
	require.NoError(t, err)
	// Skips do not count against the produced total; they are extra
	// claims turned into holes.
	require.EqualValues(t, 2000, res.Produced)
	require.NotZero(t, res.Skipped)
	require.EqualValues(t, res.Produced, res.Delivered)
}

func TestRunTimedMode(t *testing.T) {
	res, err := Run(scenario(1, 1), Options{})
	require.NoError(t, err)
	require.NotZero(t, res.Produced)
	require.Equal(t, res.Produced, res.Delivered)
	require.GreaterOrEqual(t, res.Elapsed, 100*time.Millisecond)
}

func TestRunSlowConsumer(t *testing.T) {
	s := scenario(1, 1)
	s.Capacity = 2
	res, err := Run(s, Options{CountPerProducer: 200, ConsumerDelayMax: 10 * time.Microsecond})
	require.NoError(t, err)
	require.EqualValues(t, 200, res.Produced)
	require.EqualValues(t, 200, res.Delivered)
}

func TestStrategyFor(t *testing.T) {
	for _, name := range []string{"spin", "threaded", "hybrid", ""} {
		s := StrategyFor(name)
		require.NotNil(t, s)
		require.NoError(t, s.Yield(true, "q", "a"))
		s.Free()
	}
}
