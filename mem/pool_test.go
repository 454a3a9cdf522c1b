package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type block struct {
	id   int
	data [16]byte
}

func TestPoolCapacity(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7} {
		p := NewPool[block](n)
		handles := make([]Handle, 0, n)
		for i := 0; i < n; i++ {
			h, b := p.Acquire()
			require.NotEqual(t, NoHandle, h, "acquire %d of %d", i+1, n)
			require.NotNil(t, b)
			handles = append(handles, h)
		}
		h, b := p.Acquire()
		require.Equal(t, NoHandle, h, "acquire past capacity %d", n)
		require.Nil(t, b)
		require.Equal(t, n, p.InUse())
		require.False(t, p.IsFree())

		if n == 0 {
			continue
		}

		// Releasing any one block makes exactly one more acquire succeed.
		p.Release(handles[n/2])
		h, _ = p.Acquire()
		require.Equal(t, handles[n/2], h)
		h, _ = p.Acquire()
		require.Equal(t, NoHandle, h)
	}
}

func TestPoolBlocksAreDistinct(t *testing.T) {
	p := NewPool[block](4)
	seen := map[*block]bool{}
	for i := 0; i < 4; i++ {
		h, b := p.Acquire()
		require.False(t, seen[b])
		seen[b] = true
		b.id = i
		require.Same(t, b, p.At(h))
	}
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	p := NewPool[block](2)
	h, _ := p.Acquire()
	p.Release(h)
	require.Panics(t, func() { p.Release(h) })
	require.Panics(t, func() { p.Release(Handle(5)) })
	require.Nil(t, p.At(h))
}

func TestPoolInit(t *testing.T) {
	p := NewPool[block](3)
	_, b := p.Acquire()
	b.id = 42
	p.Acquire()
	require.Equal(t, 1, p.Available())

	p.Init()
	require.Equal(t, 3, p.Available())
	h, b := p.Acquire()
	require.Equal(t, Handle(0), h)
	require.Zero(t, b.id)
}
