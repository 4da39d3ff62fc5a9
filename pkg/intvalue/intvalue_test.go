package intvalue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoVaronT/pkg/vrt"
)

func TestTypeAllocatesFreshValues(t *testing.T) {
	vt := Type()
	require.Equal(t, TypeID, vt.TypeID())

	a, err := vt.NewValue()
	require.NoError(t, err)
	b, err := vt.NewValue()
	require.NoError(t, err)
	require.NotSame(t, a, b)

	vt.FreeValue(a)
	vt.FreeValue(b)
}

func TestSetGetRoundTrip(t *testing.T) {
	vt := Type()
	v, err := vt.NewValue()
	require.NoError(t, err)

	Set(v, 12345)
	require.EqualValues(t, 12345, Get(v))

	var _ vrt.Value = v
}
