// Package executor runs execution plans group by group: calls within a
// group fan out concurrently, the group joins before the next one starts,
// and individual failures are isolated into their results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// GroupExecutor executes plans against a tool registry.
type GroupExecutor struct {
	toolRegistry  map[string]pitwall.Tool
	maxConcurrent int           // Max concurrent calls within one group
	callTimeout   time.Duration // Per-call execution timeout
	bus           eventbus.Bus  // Optional lifecycle event bus

	// Statistics and metrics
	metrics ExecutorMetrics
}

// ExecutorOption represents an option for configuring the GroupExecutor.
type ExecutorOption func(*GroupExecutor)

// WithMaxConcurrent caps concurrent calls within a group.
func WithMaxConcurrent(n int) ExecutorOption {
	return func(e *GroupExecutor) {
		e.maxConcurrent = n
	}
}

// WithCallTimeout sets the per-call execution timeout.
func WithCallTimeout(timeout time.Duration) ExecutorOption {
	return func(e *GroupExecutor) {
		e.callTimeout = timeout
	}
}

// WithEventBus sets the bus for tool_call_started / tool_call_finished events.
func WithEventBus(bus eventbus.Bus) ExecutorOption {
	return func(e *GroupExecutor) {
		e.bus = bus
	}
}

// NewExecutor creates a new executor with default settings.
// It requires the tool registry to be passed during initialization.
func NewExecutor(toolRegistry map[string]pitwall.Tool, options ...ExecutorOption) *GroupExecutor {
	e := &GroupExecutor{
		toolRegistry:  toolRegistry,
		maxConcurrent: 8,
		callTimeout:   time.Second * 15,
	}

	// Apply options
	for _, option := range options {
		option(e)
	}

	if len(e.toolRegistry) == 0 {
		log.Println("Warning: GroupExecutor initialized with an empty or nil tool registry.")
	}

	return e
}

// ExecutePlan runs the plan's groups in order. The returned map always
// contains every call that was started, including failures; the error is
// non-nil only when the context ended before all groups completed, in
// which case the results gathered so far are still returned.
func (e *GroupExecutor) ExecutePlan(ctx context.Context, plan *pitwall.ExecutionPlan) (map[string]pitwall.ToolResult, error) {
	startTime := time.Now()
	log.Printf("Starting plan execution (total_calls: %d, groups: %d)", len(plan.ToolCalls), len(plan.Groups))

	e.resetMetrics()

	results := make(map[string]pitwall.ToolResult, len(plan.ToolCalls))
	var resultsMu sync.Mutex

	for gi, group := range plan.Groups {
		// A group only starts if the turn still has budget.
		if err := ctx.Err(); err != nil {
			log.Printf("Plan execution interrupted before group %d: %v", gi, err)
			return results, err
		}

		// Snapshot for reference resolution: dependencies sit in earlier
		// groups, so everything a call may reference is already here.
		prior := make(map[string]pitwall.ToolResult, len(results))
		resultsMu.Lock()
		for id, r := range results {
			prior[id] = r
		}
		resultsMu.Unlock()

		p := pool.New().WithMaxGoroutines(e.maxConcurrent)
		for _, id := range group {
			callID := id
			p.Go(func() {
				result := e.executeCall(ctx, plan, callID, prior)
				resultsMu.Lock()
				results[callID] = result
				resultsMu.Unlock()
			})
		}
		p.Wait()
	}

	e.recordPlanDuration(time.Since(startTime))
	log.Printf("Plan execution finished (calls: %d, failed: %d, duration: %s)",
		len(results), e.metrics.snapshotFailed(), time.Since(startTime))

	return results, nil
}

// executeCall runs one tool call with validation, timeout, and panic
// isolation. Failures never propagate; they become the call's result.
func (e *GroupExecutor) executeCall(ctx context.Context, plan *pitwall.ExecutionPlan, callID string, prior map[string]pitwall.ToolResult) (result pitwall.ToolResult) {
	call, ok := plan.Call(callID)
	if !ok {
		// Validate() rules this out for plans that reach the executor.
		return pitwall.ToolResult{
			CallID: callID,
			Err:    &pitwall.ToolError{Code: pitwall.ToolErrNotFound, Message: "call not present in plan"},
		}
	}

	result.CallID = callID
	result.ToolName = call.ToolName
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = pitwall.ToolResult{
				CallID:   callID,
				ToolName: call.ToolName,
				Err: &pitwall.ToolError{
					Code:    pitwall.ToolErrPanic,
					Message: fmt.Sprintf("tool panicked: %v", r),
				},
			}
			log.Printf("Tool call panicked (call: %s, tool: %s): %v", callID, call.ToolName, r)
		}
		result.Duration = time.Since(started)
		e.recordCall(result)
		e.publishFinished(ctx, call, result)
	}()

	e.publishStarted(ctx, call)

	tool, exists := e.toolRegistry[call.ToolName]
	if !exists {
		result.Err = &pitwall.ToolError{
			Code:    pitwall.ToolErrNotFound,
			Message: fmt.Sprintf("tool '%s' is not registered", call.ToolName),
		}
		return result
	}

	params, err := resolveParameters(call.Parameters, prior)
	if err != nil {
		result.Err = &pitwall.ToolError{
			Code:    pitwall.ToolErrInvalidParams,
			Message: err.Error(),
		}
		return result
	}

	if err := tool.Validate(params); err != nil {
		result.Err = &pitwall.ToolError{
			Code:    pitwall.ToolErrInvalidParams,
			Message: err.Error(),
		}
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	payload, err := tool.Execute(callCtx, params)
	if err != nil {
		code := pitwall.ToolErrExecution
		if errors.Is(err, context.DeadlineExceeded) {
			code = pitwall.ToolErrTimeout
		}
		result.Err = &pitwall.ToolError{Code: code, Message: err.Error()}
		log.Printf("Tool call failed (call: %s, tool: %s, code: %s): %v", callID, call.ToolName, code, err)
		return result
	}

	result.Payload = payload
	return result
}

func (e *GroupExecutor) publishStarted(ctx context.Context, call *pitwall.ToolCall) {
	if e.bus == nil {
		return
	}
	event := eventbus.NewEvent(
		eventbus.EventToolCallStarted,
		call.ToolName,
		"GroupExecutor",
		map[string]interface{}{
			"call_id": call.ID,
			"purpose": call.Purpose,
		},
	)
	if turnID := eventbus.TurnIDFromContext(ctx); turnID != "" {
		event.WithMetadata(eventbus.MetaTurnID, turnID)
	}
	e.bus.Publish(ctx, event)
}

func (e *GroupExecutor) publishFinished(ctx context.Context, call *pitwall.ToolCall, result pitwall.ToolResult) {
	if e.bus == nil {
		return
	}
	metadata := map[string]interface{}{
		"call_id":     call.ID,
		"duration_ms": result.Duration.Milliseconds(),
		"failed":      result.Failed(),
	}
	if result.Err != nil {
		metadata["error_code"] = result.Err.Code
	}
	event := eventbus.NewEvent(
		eventbus.EventToolCallFinished,
		call.ToolName,
		"GroupExecutor",
		metadata,
	)
	if turnID := eventbus.TurnIDFromContext(ctx); turnID != "" {
		event.WithMetadata(eventbus.MetaTurnID, turnID)
	}
	e.bus.Publish(ctx, event)
}

// Metrics returns a copy of the executor's current metrics.
func (e *GroupExecutor) Metrics() ExecutorMetrics {
	return e.metrics.Copy()
}

func (e *GroupExecutor) resetMetrics() {
	e.metrics.reset()
}

func (e *GroupExecutor) recordCall(result pitwall.ToolResult) {
	e.metrics.record(result)
}

func (e *GroupExecutor) recordPlanDuration(d time.Duration) {
	e.metrics.setTotalDuration(d)
}
