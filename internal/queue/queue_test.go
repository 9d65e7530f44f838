package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Type  string
	Value string
}

func TestQueue_PushPop(t *testing.T) {
	q := New[entry]()
	assert.Zero(t, q.Len())

	_, ok := q.Pop()
	assert.False(t, ok, "pop from empty queue")

	q.Push(entry{Type: "cache.miss", Value: "a"})
	q.Push(entry{Type: "cache.miss", Value: "b"}, entry{Type: "cache.fetch_error", Value: "c"})
	assert.Equal(t, 3, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.Value)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	assert.Equal(t, []int{0, 1, 2, 3}, q.Drain(4))
	assert.Equal(t, 6, q.Len())

	q.Push(10)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10}, q.Drain(0))
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain(5))
}

func TestQueue_DrainDoesNotAlias(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	batch := q.Drain(2)
	q.Push(4)
	batch[0] = 99

	assert.Equal(t, []int{3, 4}, q.Drain(0))
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Push(n)
		}(i)
	}

	drained := 0
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(q.Drain(3))
			mu.Lock()
			drained += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, drained+q.Len())
}
