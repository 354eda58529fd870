package pitwall

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// CreateTurnStateMachine builds a complete state machine for the
// question-answering workflow.
func CreateTurnStateMachine(components pipelineComponents, bus eventbus.Bus) *StateMachine {
	sm := NewStateMachine(bus, components.Config.DeadlineGrace)

	// Register all phase transitions
	sm.RegisterTransition(PhaseInit, createInitTransition(components))
	sm.RegisterTransition(PhaseUnderstanding, createUnderstandingTransition(components))
	sm.RegisterTransition(PhasePlanning, createPlanningTransition(components))
	sm.RegisterTransition(PhaseExecution, createExecutionTransition(components))
	sm.RegisterTransition(PhaseAggregation, createAggregationTransition(components))
	sm.RegisterTransition(PhaseEvaluation, createEvaluationTransition(components))
	sm.RegisterTransition(PhaseGeneration, createGenerationTransition(components))

	return sm
}

// publishStage emits a stage_entered event when a bus is configured.
func publishStage(ctx context.Context, bus eventbus.Bus, tc *TurnContext, phase TurnPhase, source string) {
	if bus == nil {
		return
	}
	event := eventbus.NewTurnEvent(eventbus.EventStageEntered, tc.TurnID, string(phase), source)
	event.WithMetadata("iteration", tc.Iteration)
	bus.Publish(ctx, event)
}

// createInitTransition handles the initialization phase: the turn_started
// event and best-effort memory recall.
func createInitTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		if bus != nil {
			startEvent := eventbus.NewTurnEvent(
				eventbus.EventTurnStarted,
				tc.TurnID,
				tc.Question,
				"StateMachine.Init",
			)
			startEvent.WithMetadata("timestamp", time.Now().Format(time.RFC3339))
			bus.Publish(ctx, startEvent)
		}

		// Memory recall is best effort and never blocks the turn on failure.
		if components.Config.EnableMemory && components.Memory != nil && tc.SubjectID != "" {
			recalled, err := components.Memory.Recall(ctx, tc.SubjectID, tc.Question)
			if err != nil {
				log.Printf("memory recall failed (turn_id: %s): %v", tc.TurnID, err)
			} else {
				tc.Recalled = recalled
			}
		}

		return PhaseUnderstanding, nil
	}
}

// createUnderstandingTransition handles the query understanding phase.
func createUnderstandingTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhaseUnderstanding, "StateMachine.Understanding")

		understanding, err := components.Understander.Understand(ctx, tc.Question, tc.History, tc.Recalled)
		if err != nil {
			// Schema failures are absorbed into the fallback understanding
			// inside the understander, so any surfacing error is fatal for
			// the turn (model unreachable, context cancelled).
			return PhaseError, NewUnderstandingError(err)
		}

		tc.Understanding = understanding
		tc.HasUnderstanding = true
		return PhasePlanning, nil
	}
}

// createPlanningTransition handles the planning phase, including the
// evaluator-driven retry passes that arrive here with feedback set.
func createPlanningTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhasePlanning, "StateMachine.Planning")

		plan, err := components.Planner.Plan(ctx, PlannerInput{
			Understanding: tc.Understanding,
			ToolSchemas:   components.GetSchemas(),
			Feedback:      tc.Feedback,
			Iteration:     tc.Iteration,
		})
		if err != nil {
			return PhaseError, NewPlanGenerationError(err)
		}

		registered := func(name string) bool {
			_, ok := components.Tools[name]
			return ok
		}
		if !plan.Empty() {
			if err := plan.Validate(registered); err != nil {
				return PhaseError, NewPlanGenerationError(err)
			}
		} else if tc.Understanding.Confidence >= components.Config.ConfidenceFloor {
			return PhaseError, NewPlanGenerationError(
				NewValidationError("planning", "planner produced an empty plan for a confident understanding", nil))
		}

		tc.Plan = plan

		// A legitimate zero-call plan skips straight to generation; the
		// answer is synthesized from the understanding sketch alone.
		if plan.Empty() {
			analysis, aggErr := components.Aggregator.Aggregate(nil, tc.Understanding)
			if aggErr != nil {
				return PhaseError, NewAggregationError(aggErr)
			}
			tc.Analysis = analysis
			tc.Outcome = EvaluationOutcome{
				State:     EvalStateExhausted,
				Score:     0,
				Iteration: tc.Iteration,
				Feedback:  "understanding confidence below planning floor",
			}
			return PhaseGeneration, nil
		}

		return PhaseExecution, nil
	}
}

// createExecutionTransition handles the tool execution phase.
func createExecutionTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhaseExecution, "StateMachine.Execution")

		results, err := components.Executor.ExecutePlan(ctx, tc.Plan)

		// Results gathered before an interruption are still merged so a
		// deadline short-circuit can answer from them.
		for id, r := range results {
			tc.Results[id] = r
		}

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// Bounce to the state machine loop, which short-circuits to
				// generation with the partial flag.
				return PhaseExecution, err
			}
			if errors.Is(err, context.Canceled) {
				return PhaseExecution, err
			}
			return PhaseError, err
		}

		return PhaseAggregation, nil
	}
}

// createAggregationTransition handles the deterministic aggregation phase.
func createAggregationTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhaseAggregation, "StateMachine.Aggregation")

		analysis, err := components.Aggregator.Aggregate(tc.Results, tc.Understanding)
		if err != nil {
			return PhaseError, NewAggregationError(err)
		}

		tc.Analysis = analysis
		return PhaseEvaluation, nil
	}
}

// createEvaluationTransition handles the sufficiency evaluation phase and
// the bounded loop back to planning.
func createEvaluationTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhaseEvaluation, "StateMachine.Evaluation")

		outcome := components.Evaluator.Evaluate(tc.Analysis, tc.Understanding, tc.Iteration)
		tc.Outcome = outcome

		if bus != nil {
			event := eventbus.NewTurnEvent(
				eventbus.EventEvaluationResult,
				tc.TurnID,
				outcome,
				"StateMachine.Evaluation",
			)
			event.WithMetadata("state", string(outcome.State))
			event.WithMetadata("score", outcome.Score)
			event.WithMetadata("iteration", outcome.Iteration)
			bus.Publish(ctx, event)
		}

		if outcome.State == EvalStateEvaluating {
			tc.Iteration++
			tc.Feedback = outcome.Feedback
			return PhasePlanning, nil
		}

		// Sufficient or exhausted: either way the turn proceeds to answer.
		return PhaseGeneration, nil
	}
}

// createGenerationTransition handles the answer synthesis phase.
func createGenerationTransition(components pipelineComponents) PhaseTransition {
	return func(ctx context.Context, bus eventbus.Bus, tc *TurnContext) (TurnPhase, error) {
		publishStage(ctx, bus, tc, PhaseGeneration, "StateMachine.Generation")

		// A deadline short-circuit can land here before aggregation ran;
		// aggregate whatever results exist so the generator has a digest.
		if tc.Analysis == nil {
			analysis, err := components.Aggregator.Aggregate(tc.Results, tc.Understanding)
			if err != nil {
				return PhaseError, NewAggregationError(err)
			}
			tc.Analysis = analysis
		}

		answer, err := components.Generator.Generate(ctx, GeneratorInput{
			Question:      tc.Question,
			Understanding: tc.Understanding,
			Analysis:      tc.Analysis,
			Outcome:       tc.Outcome,
			Partial:       tc.Partial,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return PhaseGeneration, err
			}
			return PhaseError, NewSynthesisError(err)
		}

		answer.TurnID = tc.TurnID
		answer.Iterations = tc.Iteration
		answer.Partial = tc.Partial
		if tc.Outcome.State == EvalStateExhausted || tc.Understanding.Confidence < components.Config.ConfidenceFloor {
			answer.LowConfidence = true
		}
		if tc.Analysis != nil && tc.Analysis.Confidence < components.Config.LowConfidenceThreshold {
			answer.LowConfidence = true
		}
		tc.Answer = answer

		if bus != nil {
			event := eventbus.NewTurnEvent(
				eventbus.EventFinalAnswerReady,
				tc.TurnID,
				answer,
				"StateMachine.Generation",
			)
			event.WithMetadata("low_confidence", answer.LowConfidence)
			event.WithMetadata("partial", answer.Partial)
			bus.Publish(ctx, event)
		}

		tc.Complete()
		return PhaseComplete, nil
	}
}
