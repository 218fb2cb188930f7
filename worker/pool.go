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

// Package worker implements the bounded-concurrency background consumer of
// the execution queue (spec §4.1). Its inner loop is grounded line-for-line
// on the Rust reference implementation's QueueProcessor::start (select over
// a shutdown signal vs. a poll-interval ticker; dequeue; acquire a
// semaphore permit; spawn; resolve agent; check/transition lifecycle;
// execute with a per-task timeout; update lifecycle; mark completed).
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/substrate/agent"
	"github.com/kadirpekel/substrate/queue"
)

// Config configures a Pool.
type Config struct {
	MaxConcurrentTasks int64
	TaskTimeout        time.Duration
	PollInterval       time.Duration
}

// DefaultConfig matches the reference implementation's QueueProcessorConfig
// defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 10,
		TaskTimeout:        30 * time.Second,
		PollInterval:       100 * time.Millisecond,
	}
}

// Executor runs one task to completion. Implementations typically delegate
// to the engine package.
type Executor interface {
	Execute(ctx context.Context, agentID, input string) error
}

// Pool is the bounded-concurrency worker pool.
type Pool struct {
	cfg      Config
	registry *agent.Registry
	lifecycle *agent.Lifecycle
	queue    *queue.Queue
	exec     Executor
	sem      *semaphore.Weighted

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New constructs a Pool over the given registry/lifecycle/queue/executor.
func New(cfg Config, registry *agent.Registry, lifecycle *agent.Lifecycle, q *queue.Queue, exec Executor) *Pool {
	return &Pool{
		cfg:       cfg,
		registry:  registry,
		lifecycle: lifecycle,
		queue:     q,
		exec:      exec,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentTasks),
	}
}

// Start begins background processing. Fails if already running.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return errors.New("worker pool is already running")
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop := p.stop
	done := p.done
	p.mu.Unlock()

	go p.run(ctx, stop, done)
	return nil
}

// Stop signals shutdown. No new tasks are dispatched after this call
// returns; in-flight tasks are not preempted. The outer timeout bounds how
// long the caller waits for in-flight work to drain.
func (p *Pool) Stop(outerTimeout time.Duration) error {
	p.mu.Lock()
	if p.stop == nil {
		p.mu.Unlock()
		return errors.New("worker pool is not running")
	}
	close(p.stop)
	done := p.done
	p.stop = nil
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(outerTimeout):
		return fmt.Errorf("worker pool stop timed out after %s", outerTimeout)
	}
}

func (p *Pool) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, ok := p.queue.Dequeue()
			if !ok {
				continue
			}
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return
			}
			p.queue.MarkRunning()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer p.sem.Release(1)
				p.processTask(ctx, task)
			}()
		}
	}
}

func (p *Pool) processTask(ctx context.Context, t queue.Task) {
	defer p.queue.MarkCompleted()

	a, ok := p.registry.Get(t.AgentID)
	if !ok {
		if p.registry.IsRegistered(t.AgentID) {
			p.lifecycle.MarkError(t.AgentID)
		}
		return
	}

	state := p.lifecycle.GetState(t.AgentID)
	if state != agent.StateIdle && state != agent.StateRunning {
		p.lifecycle.MarkError(t.AgentID)
		return
	}
	if state == agent.StateIdle {
		if err := p.lifecycle.StartAgent(t.AgentID); err != nil {
			p.lifecycle.MarkError(t.AgentID)
			return
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	_ = a // agent resolution is the dispatch precondition; execution goes
	// through the Executor so the pool stays agnostic to the engine.
	err := p.exec.Execute(taskCtx, t.AgentID, t.Input)
	if err != nil {
		p.lifecycle.MarkError(t.AgentID)
		return
	}
	p.lifecycle.SetIdle(t.AgentID)
}
