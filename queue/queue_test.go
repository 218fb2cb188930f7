package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueueOrdering is the literal scenario from spec §8 scenario 4: enqueue
// A(priority=1), B(priority=3), C(priority=2); dequeue order is B, C, A.
// Cancel C before dispatch -> dequeue order becomes B, A; metrics show
// cancelled=1, completed=2, pending=0.
func TestQueueOrdering(t *testing.T) {
	q := New(nil)
	a := NewTask("agent", "A", 1, "A")
	b := NewTask("agent", "B", 3, "B")
	c := NewTask("agent", "C", 2, "C")
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	require.True(t, q.Cancel("C"))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "B", first.ID)
	q.MarkRunning()
	q.MarkCompleted()

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "A", second.ID)
	q.MarkRunning()
	q.MarkCompleted()

	_, ok = q.Dequeue()
	assert.False(t, ok)

	m := q.Metrics()
	assert.Equal(t, int64(1), m.Cancelled)
	assert.Equal(t, int64(2), m.Completed)
	assert.Equal(t, int64(0), m.Pending)
}

func TestCancelIsNoOpWhenNotPending(t *testing.T) {
	q := New(nil)
	assert.False(t, q.Cancel("ghost"))
}

func TestDequeueNonBlockingWhenEmpty(t *testing.T) {
	q := New(nil)
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestMetricsAccountForEveryTask(t *testing.T) {
	q := New(nil)
	total := 5
	for i := 0; i < total; i++ {
		q.Enqueue(NewTask("agent", "x", 0, ""))
	}
	q.Cancel(mustID(t, q))

	completed := 0
	for {
		task, ok := q.Dequeue()
		if !ok {
			break
		}
		_ = task
		q.MarkRunning()
		q.MarkCompleted()
		completed++
	}
	m := q.Metrics()
	assert.EqualValues(t, total, m.Completed+m.Cancelled+m.Running+m.Pending)
}

func mustID(t *testing.T, q *Queue) string {
	t.Helper()
	for id := range q.index {
		return id
	}
	t.Fatal("queue empty")
	return ""
}
