package looper

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTasksRunInPostingOrder(t *testing.T) {
	l := New("test")
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Flush()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	l := New("test")

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		l.Post(func() { count.Add(1) })
	}
	l.Stop()

	require.Equal(t, int32(10), count.Load())
}

func TestPostAfterStopIsDropped(t *testing.T) {
	l := New("test")
	l.Stop()

	ran := false
	l.Post(func() { ran = true })
	require.False(t, ran)
}
