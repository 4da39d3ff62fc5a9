package padded

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// The cell must span two full cache lines so the hot field cannot
// share a line with whatever is allocated next to it.
func TestInt64Layout(t *testing.T) {
	require.Equal(t, uintptr(128), unsafe.Sizeof(Int64{}))
	var c Int64
	require.Equal(t, uintptr(64), unsafe.Offsetof(c.value))
}

func TestInt64GetSet(t *testing.T) {
	var c Int64
	require.EqualValues(t, 0, c.Get())
	c.Set(-1)
	require.EqualValues(t, -1, c.Get())
	c.Set(1 << 40)
	require.EqualValues(t, 1<<40, c.Get())
}

func TestInt64CompareAndSwap(t *testing.T) {
	var c Int64
	c.Set(7)
	require.False(t, c.CompareAndSwap(6, 8))
	require.EqualValues(t, 7, c.Get())
	require.True(t, c.CompareAndSwap(7, 8))
	require.EqualValues(t, 8, c.Get())
}

func TestInt64ConcurrentAdd(t *testing.T) {
	const (
		goroutines = 8
		increments = 10000
	)
	var c Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				c.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, goroutines*increments, c.Get())
}

func TestInt64ConcurrentCAS(t *testing.T) {
	const goroutines = 8
	var c Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for {
				old := c.Get()
				if old >= 1000 {
					return
				}
				c.CompareAndSwap(old, old+1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1000, c.Get())
}
