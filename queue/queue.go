// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements the priority FIFO execution queue (spec §3,
// §4.1): a max-heap by priority with FIFO tie-breaking, cancellation, and
// atomically-observed metrics.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Task is an execution task. Tasks are immutable once enqueued except for
// status (tracked externally by the queue, not on this value).
type Task struct {
	ID        string
	AgentID   string
	Input     string
	Priority  int
	Payload   map[string]any
	CreatedAt time.Time
}

// NewTask builds a Task, generating a uuid if id is empty.
func NewTask(agentID, input string, priority int, id string) Task {
	if id == "" {
		id = uuid.NewString()
	}
	return Task{ID: id, AgentID: agentID, Input: input, Priority: priority, CreatedAt: time.Now()}
}

// Metrics is a consistent snapshot of queue counters, all observed at one
// instant.
type Metrics struct {
	Pending   int64
	Running   int64
	Completed int64
	Cancelled int64
}

// entry is one heap element: a task plus its insertion sequence number, used
// to break priority ties FIFO.
type entry struct {
	task Task
	seq  uint64
}

type taskHeap []*entry

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a priority FIFO task queue with cancellation.
type Queue struct {
	mu      sync.Mutex
	pending taskHeap
	index   map[string]*entry // pending tasks by id, for O(1) cancel lookup
	nextSeq uint64

	pendingCnt   int64
	runningCnt   int64
	completedCnt int64
	cancelledCnt int64

	gaugePending   prometheus.Gauge
	gaugeRunning   prometheus.Gauge
	counterDone    prometheus.Counter
	counterCancel  prometheus.Counter
}

// New constructs an empty Queue, registering its metrics on reg (pass nil to
// skip Prometheus registration, e.g. in tests).
func New(reg prometheus.Registerer) *Queue {
	q := &Queue{index: make(map[string]*entry)}
	heap.Init(&q.pending)

	q.gaugePending = prometheus.NewGauge(prometheus.GaugeOpts{Name: "substrate_queue_pending", Help: "Pending tasks."})
	q.gaugeRunning = prometheus.NewGauge(prometheus.GaugeOpts{Name: "substrate_queue_running", Help: "Running tasks."})
	q.counterDone = prometheus.NewCounter(prometheus.CounterOpts{Name: "substrate_queue_completed_total", Help: "Completed tasks."})
	q.counterCancel = prometheus.NewCounter(prometheus.CounterOpts{Name: "substrate_queue_cancelled_total", Help: "Cancelled tasks."})
	if reg != nil {
		reg.MustRegister(q.gaugePending, q.gaugeRunning, q.counterDone, q.counterCancel)
	}
	return q
}

// Enqueue adds t to the pending set.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &entry{task: t, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.pending, e)
	q.index[t.ID] = e
	q.pendingCnt++
	if q.gaugePending != nil {
		q.gaugePending.Inc()
	}
}

// Dequeue removes and returns the highest-priority pending task, ties broken
// FIFO. Non-blocking: returns ok=false when empty. Callers are expected to
// call MarkRunning after successfully dispatching.
func (q *Queue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, false
	}
	e := heap.Pop(&q.pending).(*entry)
	delete(q.index, e.task.ID)
	q.pendingCnt--
	if q.gaugePending != nil {
		q.gaugePending.Dec()
	}
	return e.task, true
}

// MarkRunning records that a dequeued task has begun executing.
func (q *Queue) MarkRunning() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runningCnt++
	if q.gaugeRunning != nil {
		q.gaugeRunning.Inc()
	}
}

// MarkCompleted records that a running task has finished (success or
// failure alike — completion is a terminal status, not an outcome).
func (q *Queue) MarkCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runningCnt--
	q.completedCnt++
	if q.gaugeRunning != nil {
		q.gaugeRunning.Dec()
	}
	if q.counterDone != nil {
		q.counterDone.Inc()
	}
}

// Cancel removes id from the pending set and increments the cancelled
// counter. No-op (returns false) if the task is not pending (already
// running or completed, or never existed).
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[id]
	if !ok {
		return false
	}
	for i, other := range q.pending {
		if other == e {
			heap.Remove(&q.pending, i)
			break
		}
	}
	delete(q.index, id)
	q.pendingCnt--
	q.cancelledCnt++
	if q.gaugePending != nil {
		q.gaugePending.Dec()
	}
	if q.counterCancel != nil {
		q.counterCancel.Inc()
	}
	return true
}

// Metrics returns a consistent snapshot of all counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Metrics{
		Pending:   q.pendingCnt,
		Running:   q.runningCnt,
		Completed: q.completedCnt,
		Cancelled: q.cancelledCnt,
	}
}
