// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"log/slog"

	"github.com/kadirpekel/substrate/engine"
)

// EventLogger drains an engine.Bus subscription and renders each
// engine.Event as a structured log line through the package's slog
// logger, so an operator watching log output sees the same tool-calling
// narrative (spec §4.2) a streaming client sees on the bus.
type EventLogger struct {
	sub *engine.Subscriber
	log *slog.Logger
}

// NewEventLogger subscribes to bus. A nil log falls back to GetLogger().
func NewEventLogger(bus *engine.Bus, log *slog.Logger) *EventLogger {
	if log == nil {
		log = GetLogger()
	}
	return &EventLogger{sub: bus.Subscribe(), log: log}
}

// Run logs events until ctx is done or the bus subscription closes.
// Intended to be started as a goroutine alongside the server/CLI command
// that owns the bus.
func (l *EventLogger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-l.sub.Events():
			if !ok {
				return
			}
			l.logEvent(e)
		}
	}
}

// logEvent renders one event at the level appropriate to its kind.
func (l *EventLogger) logEvent(e engine.Event) {
	switch e.Kind {
	case engine.EventStarted:
		l.log.Info("engine: run started")
	case engine.EventTokenChunk:
		l.log.Debug("engine: token chunk", "chars", len(e.Text))
	case engine.EventAssistantMessage:
		l.log.Debug("engine: assistant message", "chars", len(e.Text))
	case engine.EventToolCallStarted:
		l.log.Info("engine: tool call started", "tool_call_id", e.ToolCallID, "tool", e.ToolName)
	case engine.EventApprovalRequested:
		l.log.Info("engine: approval requested", "tool_call_id", e.ToolCallID, "tool", e.ToolName)
	case engine.EventApprovalResolved:
		l.log.Info("engine: approval resolved", "tool_call_id", e.ToolCallID, "approved", e.Approved)
	case engine.EventToolCallCompleted:
		l.log.Info("engine: tool call completed", "tool_call_id", e.ToolCallID, "tool", e.ToolName, "success", e.Success)
	case engine.EventProgress:
		l.log.Debug("engine: progress", "iteration", e.Iteration, "total", e.Total)
	case engine.EventCompleted:
		l.log.Info("engine: run completed", "finish_reason", e.FinishReason)
	case engine.EventFailed:
		l.log.Error("engine: run failed", "error", e.Error)
	default:
		l.log.Debug("engine: event", "kind", e.Kind)
	}
}

// Close releases the bus subscription.
func (l *EventLogger) Close(bus *engine.Bus) {
	bus.Unsubscribe(l.sub)
}
