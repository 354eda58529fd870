package pitwall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// TurnPhase represents the current phase of a turn's execution.
type TurnPhase string

const (
	// PhaseInit is the initial phase of the turn
	PhaseInit TurnPhase = "init"
	// PhaseUnderstanding represents the query understanding phase
	PhaseUnderstanding TurnPhase = "understanding"
	// PhasePlanning represents the retrieval planning phase
	PhasePlanning TurnPhase = "planning"
	// PhaseExecution represents the tool execution phase
	PhaseExecution TurnPhase = "execution"
	// PhaseAggregation represents the deterministic aggregation phase
	PhaseAggregation TurnPhase = "aggregation"
	// PhaseEvaluation represents the sufficiency evaluation phase
	PhaseEvaluation TurnPhase = "evaluation"
	// PhaseGeneration represents the answer synthesis phase
	PhaseGeneration TurnPhase = "generation"
	// PhaseError represents an error phase
	PhaseError TurnPhase = "error"
	// PhaseComplete represents the completed phase
	PhaseComplete TurnPhase = "complete"
	// PhaseCancelled represents the cancelled phase
	PhaseCancelled TurnPhase = "cancelled"
	// PhaseUnknown is used when the status of an async turn cannot be determined.
	PhaseUnknown TurnPhase = "unknown"
)

// TurnContext contains the data threaded through one turn's execution.
// It acts as the "tape" in the pushdown automaton and is never shared
// across turns.
type TurnContext struct {
	// Input parameters
	TurnID    string
	Question  string
	SubjectID string
	History   []Message

	// Intermediate results
	Recalled         []Fact
	Understanding    QueryUnderstanding
	HasUnderstanding bool
	Plan             *ExecutionPlan
	Results          map[string]ToolResult
	Analysis         *AggregatedAnalysis
	Outcome          EvaluationOutcome
	Answer           *FinalAnswer

	// Loop bookkeeping
	Iteration int    // completed re-planning passes, starts at 0
	Feedback  string // evaluator feedback feeding the next planning pass
	Partial   bool   // set when the turn deadline forced a short-circuit

	// Error handling
	LastError  error
	ErrorPhase string

	// State management
	CurrentPhase TurnPhase
	PhaseStack   []TurnPhase

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	PhaseStartTimes map[TurnPhase]time.Time
}

// NewTurnContext creates a fresh turn context for a question.
func NewTurnContext(question string, conv ConversationContext) *TurnContext {
	return &TurnContext{
		TurnID:          uuid.New().String(),
		Question:        question,
		SubjectID:       conv.SubjectID,
		History:         conv.History,
		Results:         make(map[string]ToolResult),
		CurrentPhase:    PhaseInit,
		PhaseStack:      []TurnPhase{},
		StartTime:       time.Now(),
		PhaseStartTimes: make(map[TurnPhase]time.Time),
	}
}

// PushPhase pushes the current phase onto the stack and sets a new current phase.
func (tc *TurnContext) PushPhase(phase TurnPhase) {
	tc.PhaseStack = append(tc.PhaseStack, tc.CurrentPhase)
	tc.CurrentPhase = phase
	tc.PhaseStartTimes[phase] = time.Now()
}

// PopPhase pops the top phase from the stack and sets it as the current phase.
// Returns false if the stack is empty.
func (tc *TurnContext) PopPhase() bool {
	if len(tc.PhaseStack) == 0 {
		return false
	}
	lastIdx := len(tc.PhaseStack) - 1
	tc.CurrentPhase = tc.PhaseStack[lastIdx]
	tc.PhaseStack = tc.PhaseStack[:lastIdx]
	tc.PhaseStartTimes[tc.CurrentPhase] = time.Now()
	return true
}

// IsTerminal checks if the current phase is terminal (Complete, Error, Cancelled).
func (tc *TurnContext) IsTerminal() bool {
	return tc.CurrentPhase == PhaseComplete || tc.CurrentPhase == PhaseError || tc.CurrentPhase == PhaseCancelled
}

// SetError sets the last error and error phase, transitioning to PhaseError.
func (tc *TurnContext) SetError(err error, phase string) {
	tc.LastError = err
	tc.ErrorPhase = phase
	tc.CurrentPhase = PhaseError
	tc.PhaseStartTimes[PhaseError] = time.Now()
}

// SetCancelled sets the phase to Cancelled and records the cancellation error.
func (tc *TurnContext) SetCancelled(err error, phase string) {
	tc.LastError = err
	tc.ErrorPhase = phase // Record the phase where cancellation was detected
	tc.CurrentPhase = PhaseCancelled
	tc.PhaseStartTimes[PhaseCancelled] = time.Now()
}

// Complete marks the turn as complete and sets the end time.
func (tc *TurnContext) Complete() {
	tc.CurrentPhase = PhaseComplete
	tc.EndTime = time.Now()
	tc.PhaseStartTimes[PhaseComplete] = tc.EndTime
}

// GetTotalDuration returns the total duration of the turn so far.
func (tc *TurnContext) GetTotalDuration() time.Duration {
	if tc.CurrentPhase == PhaseComplete {
		return tc.EndTime.Sub(tc.StartTime)
	}
	return time.Since(tc.StartTime)
}

// PhaseTransition defines a transition function for the state machine.
type PhaseTransition func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error)

// StateMachine drives a turn through its phases until a terminal phase.
type StateMachine struct {
	transitions map[TurnPhase]PhaseTransition
	bus         eventbus.Bus
	grace       time.Duration
	detached    bool
}

// NewStateMachine creates a new state machine with the provided event bus
// and post-deadline grace budget.
func NewStateMachine(bus eventbus.Bus, grace time.Duration) *StateMachine {
	return &StateMachine{
		transitions: make(map[TurnPhase]PhaseTransition),
		bus:         bus,
		grace:       grace,
	}
}

// RegisterTransition registers a phase transition function.
func (sm *StateMachine) RegisterTransition(phase TurnPhase, transition PhaseTransition) {
	sm.transitions[phase] = transition
}

// canSalvage reports whether a deadline hit mid-turn can still yield a
// partial answer. Understanding must exist; generation itself is covered by
// the grace budget instead.
func (sm *StateMachine) canSalvage(tc *TurnContext) bool {
	if !tc.HasUnderstanding {
		return false
	}
	switch tc.CurrentPhase {
	case PhasePlanning, PhaseExecution, PhaseAggregation, PhaseEvaluation, PhaseGeneration:
		return true
	}
	return false
}

// Execute runs the state machine until completion, error, or cancellation.
// When the context deadline expires after understanding succeeded, the turn
// short-circuits to generation on a detached context bounded by the grace
// budget, and the answer is flagged partial.
func (sm *StateMachine) Execute(ctx context.Context, tc *TurnContext) (*FinalAnswer, error) {
	cleanup := func() {}
	defer func() { cleanup() }()

	for !tc.IsTerminal() {
		// Check for context cancellation before executing the next phase
		select {
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) && !sm.detached && sm.canSalvage(tc) {
				sm.detached = true
				tc.Partial = true
				tc.CurrentPhase = PhaseGeneration
				tc.PhaseStartTimes[PhaseGeneration] = time.Now()
				detachedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sm.grace)
				cleanup = cancel
				ctx = detachedCtx
				continue
			}
			currentPhase := string(tc.CurrentPhase)
			tc.SetCancelled(err, currentPhase)
			return nil, NewCancelledError(currentPhase, err)
		default:
			// Context is still active, proceed
		}

		transition, exists := sm.transitions[tc.CurrentPhase]
		if !exists {
			err := fmt.Errorf("no transition defined for phase: %s", tc.CurrentPhase)
			tc.SetError(err, string(tc.CurrentPhase))
			return nil, err
		}

		nextPhase, err := transition(ctx, sm.bus, tc)

		if err != nil {
			currentPhase := string(tc.CurrentPhase)
			// Cancellation surfacing from inside a transition loops back to
			// the select above, where the short-circuit decision is made.
			// That only holds when the turn context itself has ended; a
			// context error leaking from a nested timeout while the turn is
			// alive would otherwise re-run the same phase forever, so it is
			// treated as a plain phase failure.
			if (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
				continue
			}
			if !tc.IsTerminal() { // Avoid overwriting if already set to Error/Cancelled
				tc.SetError(err, currentPhase)
			}
			continue
		}

		// Update the current phase if it wasn't changed by SetError/SetCancelled
		if !tc.IsTerminal() {
			tc.CurrentPhase = nextPhase
			tc.PhaseStartTimes[nextPhase] = time.Now()
		}
	}

	if tc.CurrentPhase == PhaseCancelled {
		return nil, tc.LastError
	}
	return tc.Answer, tc.LastError
}
