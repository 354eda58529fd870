package pitwall

import (
	"context"
	"fmt"
	"time"

	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// AsyncTurnStatus represents the status information for an async turn.
type AsyncTurnStatus struct {
	TurnID       string        `json:"turn_id"`
	Question     string        `json:"question"`
	CurrentPhase TurnPhase     `json:"current_phase"`
	Iteration    int           `json:"iteration"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorPhase   string        `json:"error_phase,omitempty"`
}

// AnswerAsync starts an asynchronous question-answering turn. It returns
// the turn ID, usable to poll status, fetch the result, or cancel.
func (p *Pitwall) AnswerAsync(ctx context.Context, question string, conv ConversationContext) (string, error) {
	stateMachine := p.createStateMachine()
	tc := NewTurnContext(question, conv)

	// The async turn runs on its own context so it outlives the caller;
	// only the configured turn deadline and explicit cancellation bound it.
	asyncCtx, cancel := context.WithTimeout(context.Background(), p.config.TurnDeadline)
	asyncCtx = eventbus.ContextWithTurnID(asyncCtx, tc.TurnID)

	p.asyncTurnsMutex.Lock()
	p.asyncTurns[tc.TurnID] = tc
	p.cancelFns[tc.TurnID] = cancel
	p.asyncTurnsMutex.Unlock()

	if p.config.EnableEventBus && p.bus != nil {
		startEvent := eventbus.NewTurnEvent(
			eventbus.EventTurnStarted,
			tc.TurnID,
			question,
			"Pitwall.AnswerAsync",
		)
		startEvent.WithMetadata("async", true)
		p.bus.Publish(ctx, startEvent)
	}

	go func() {
		defer cancel()

		_, err := stateMachine.Execute(asyncCtx, tc)
		p.publishTerminal(tc, err)
		if err == nil {
			p.rememberTurn(tc)
		}
	}()

	return tc.TurnID, nil
}

// GetAsyncStatus retrieves the current status of an async turn.
func (p *Pitwall) GetAsyncStatus(turnID string) (*AsyncTurnStatus, error) {
	p.asyncTurnsMutex.RLock()
	defer p.asyncTurnsMutex.RUnlock()

	tc, exists := p.asyncTurns[turnID]
	if !exists {
		return nil, fmt.Errorf("turn with ID '%s' not found", turnID)
	}

	status := &AsyncTurnStatus{
		TurnID:       turnID,
		Question:     tc.Question,
		CurrentPhase: tc.CurrentPhase,
		Iteration:    tc.Iteration,
		StartTime:    tc.StartTime,
		Duration:     tc.GetTotalDuration(),
		IsComplete:   tc.CurrentPhase == PhaseComplete,
		HasError:     tc.CurrentPhase == PhaseError || tc.CurrentPhase == PhaseCancelled,
	}

	if tc.LastError != nil {
		status.ErrorMessage = tc.LastError.Error()
		status.ErrorPhase = tc.ErrorPhase
	}

	return status, nil
}

// GetAsyncResult retrieves the result of a completed async turn.
// Returns an error if the turn is not complete or failed.
func (p *Pitwall) GetAsyncResult(turnID string) (*FinalAnswer, error) {
	p.asyncTurnsMutex.RLock()
	defer p.asyncTurnsMutex.RUnlock()

	tc, exists := p.asyncTurns[turnID]
	if !exists {
		return nil, fmt.Errorf("turn with ID '%s' not found", turnID)
	}

	if tc.CurrentPhase != PhaseComplete {
		if tc.CurrentPhase == PhaseError || tc.CurrentPhase == PhaseCancelled {
			return nil, fmt.Errorf("turn failed during phase '%s': %w", tc.ErrorPhase, tc.LastError)
		}
		return nil, fmt.Errorf("turn is still in progress (current phase: %s)", tc.CurrentPhase)
	}

	if tc.Answer == nil {
		return nil, NewInternalError("async", "turn completed without an answer", tc.LastError)
	}

	return tc.Answer, nil
}

// CancelAsyncTurn cancels an ongoing async turn.
// Returns true if the turn was cancelled, false if it was already terminal.
func (p *Pitwall) CancelAsyncTurn(turnID string) (bool, error) {
	p.asyncTurnsMutex.Lock()
	defer p.asyncTurnsMutex.Unlock()

	tc, exists := p.asyncTurns[turnID]
	if !exists {
		return false, fmt.Errorf("turn with ID '%s' not found", turnID)
	}

	if tc.IsTerminal() {
		return false, nil
	}

	cancel, ok := p.cancelFns[turnID]
	if !ok {
		return false, fmt.Errorf("cannot cancel turn: cancel function not found")
	}
	cancel()

	if p.config.EnableEventBus && p.bus != nil {
		cancelEvent := eventbus.NewTurnEvent(
			eventbus.EventTurnCancelled,
			turnID,
			tc.Question,
			"Pitwall.CancelAsyncTurn",
		)
		cancelEvent.WithMetadata("duration_ms", tc.GetTotalDuration().Milliseconds())
		p.bus.Publish(context.Background(), cancelEvent)
	}

	return true, nil
}

// ListAsyncTurns returns all async turn IDs with their current phases.
func (p *Pitwall) ListAsyncTurns() map[string]string {
	p.asyncTurnsMutex.RLock()
	defer p.asyncTurnsMutex.RUnlock()

	result := make(map[string]string)
	for id, tc := range p.asyncTurns {
		result[id] = string(tc.CurrentPhase)
	}

	return result
}

// CleanupCompletedTurns removes terminal turns older than the specified
// duration. This prevents unbounded growth of the async turn map.
func (p *Pitwall) CleanupCompletedTurns(olderThan time.Duration) int {
	p.asyncTurnsMutex.Lock()
	defer p.asyncTurnsMutex.Unlock()

	now := time.Now()
	count := 0

	for id, tc := range p.asyncTurns {
		if tc.IsTerminal() && now.Sub(tc.PhaseStartTimes[tc.CurrentPhase]) > olderThan {
			delete(p.asyncTurns, id)
			delete(p.cancelFns, id)
			count++
		}
	}

	return count
}
