package containers

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	for i := 0; i < 3; i++ {
		rq.Enqueue(i)
	}

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	for i := 0; i < 3; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, core.ErrQueueEmpty)
}

func TestRingQueueGrowsWhenFull(t *testing.T) {
	rq := NewRingQueue[string](2)
	// move the read index off zero so growth has to unwrap
	rq.Enqueue("a")
	rq.Enqueue("b")
	_, _ = rq.Dequeue()
	rq.Enqueue("c")
	assert.True(t, rq.IsFull())

	rq.Enqueue("d")
	rq.Enqueue("e")
	assert.Equal(t, 4, rq.Len())
	assert.GreaterOrEqual(t, rq.Cap(), 4)

	assert.Equal(t, []string{"b", "c", "d", "e"}, rq.Drain())
	assert.True(t, rq.IsEmpty())
}

func TestRingQueueZeroSize(t *testing.T) {
	rq := NewRingQueue[int](0)
	rq.Enqueue(7)
	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
