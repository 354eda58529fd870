// Package pitwall provides the core runtime for answering natural-language
// questions about historical motorsport sessions.
package pitwall

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// Pitwall is the main entry point into the runtime. It encapsulates every
// component required for executing a question-answering turn.
type Pitwall struct {
	// Core components
	understander Understander
	planner      Planner
	executor     Executor
	aggregator   Aggregator
	generator    Generator
	evaluator    *Evaluator
	memory       Memory
	bus          eventbus.Bus

	// Available tools
	tools map[string]Tool

	// Configuration
	config Config

	// Async processing
	asyncTurns      map[string]*TurnContext
	cancelFns       map[string]context.CancelFunc
	asyncTurnsMutex sync.RWMutex
}

// pipelineComponents holds references to the core components needed for
// phase transitions.
type pipelineComponents struct {
	Understander Understander
	Planner      Planner
	Executor     Executor
	Aggregator   Aggregator
	Generator    Generator
	Evaluator    *Evaluator
	Memory       Memory
	Tools        map[string]Tool
	Config       Config

	// Function to retrieve tool schemas
	GetSchemas func() map[string]map[string]interface{}
}

// Option is a function that configures a Pitwall instance.
type Option func(*Pitwall)

// WithConfig sets the runtime configuration.
func WithConfig(config Config) Option {
	return func(p *Pitwall) {
		p.config = config.withDefaults()
	}
}

// WithUnderstander sets the understanding component.
func WithUnderstander(u Understander) Option {
	return func(p *Pitwall) {
		p.understander = u
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(p *Pitwall) {
		p.planner = planner
	}
}

// WithExecutor sets the executor component.
func WithExecutor(executor Executor) Option {
	return func(p *Pitwall) {
		p.executor = executor
	}
}

// WithAggregator sets the aggregator component.
func WithAggregator(aggregator Aggregator) Option {
	return func(p *Pitwall) {
		p.aggregator = aggregator
	}
}

// WithGenerator sets the generator component.
func WithGenerator(generator Generator) Option {
	return func(p *Pitwall) {
		p.generator = generator
	}
}

// WithMemory sets the long-term memory component.
func WithMemory(memory Memory) Option {
	return func(p *Pitwall) {
		p.memory = memory
	}
}

// WithTools adds tools to the runtime.
func WithTools(tools map[string]Tool) Option {
	return func(p *Pitwall) {
		if p.tools == nil {
			p.tools = make(map[string]Tool)
		}

		for name, tool := range tools {
			p.tools[name] = tool
		}
	}
}

// New creates a new Pitwall instance with the provided options.
func New(ctx context.Context, options ...Option) (*Pitwall, error) {
	// Create with default configuration
	pw := &Pitwall{
		config:     DefaultConfig(),
		tools:      make(map[string]Tool),
		asyncTurns: make(map[string]*TurnContext),
		cancelFns:  make(map[string]context.CancelFunc),
	}

	// Apply options
	for _, option := range options {
		option(pw)
	}

	// Validate required components
	if pw.understander == nil {
		return nil, NewConfigurationError("understander is required", nil)
	}

	if pw.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}

	if pw.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}

	if pw.aggregator == nil {
		return nil, NewConfigurationError("aggregator is required", nil)
	}

	if pw.generator == nil {
		return nil, NewConfigurationError("generator is required", nil)
	}

	if len(pw.tools) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}

	pw.evaluator = NewEvaluator(pw.config)

	// Initialize event bus if enabled but not provided
	if pw.config.EnableEventBus && pw.bus == nil {
		pw.bus = eventbus.NewChannelBus(
			eventbus.WithBufferSize(pw.config.EventBusBufferSize),
			eventbus.WithWorkerCount(pw.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return pw, nil
}

// RegisterTool adds a new tool to the runtime.
func (p *Pitwall) RegisterTool(name string, tool Tool) error {
	if _, exists := p.tools[name]; exists {
		return fmt.Errorf("tool with name '%s' already exists", name)
	}

	p.tools[name] = tool
	return nil
}

// GetToolSchemas returns a map of tool names to their full schemas,
// suitable for use in planner prompts.
func (p *Pitwall) GetToolSchemas() map[string]map[string]interface{} {
	schemas := make(map[string]map[string]interface{})

	for name, tool := range p.tools {
		schemas[name] = tool.Schema()
	}

	return schemas
}

// GetToolByName returns a tool by its name, or an error if not found.
func (p *Pitwall) GetToolByName(name string) (Tool, error) {
	if tool, exists := p.tools[name]; exists {
		return tool, nil
	}
	return nil, NewToolNotFoundError("registry", name)
}

// ListTools returns a list of all registered tool names.
func (p *Pitwall) ListTools() []string {
	names := make([]string, 0, len(p.tools))
	for name := range p.tools {
		names = append(names, name)
	}
	return names
}

// EventBus exposes the bus so callers can subscribe to turn lifecycle events.
func (p *Pitwall) EventBus() eventbus.Bus {
	return p.bus
}

// Config returns a copy of the active configuration.
func (p *Pitwall) Config() Config {
	return p.config
}

// Answer handles one end-to-end question-answering turn through the
// pushdown automaton state machine. The turn deadline from config is
// applied on top of the caller's context.
func (p *Pitwall) Answer(ctx context.Context, question string, conv ConversationContext) (*FinalAnswer, error) {
	turnCtx, cancel := context.WithTimeout(ctx, p.config.TurnDeadline)
	defer cancel()

	stateMachine := p.createStateMachine()
	tc := NewTurnContext(question, conv)
	turnCtx = eventbus.ContextWithTurnID(turnCtx, tc.TurnID)

	answer, err := stateMachine.Execute(turnCtx, tc)
	p.publishTerminal(tc, err)
	if err != nil {
		return nil, err
	}
	go p.rememberTurn(tc)
	return answer, nil
}

// publishTerminal emits the turn_completed / turn_failed / turn_cancelled
// event matching the turn's terminal phase.
func (p *Pitwall) publishTerminal(tc *TurnContext, err error) {
	if !p.config.EnableEventBus || p.bus == nil {
		return
	}

	eventType := eventbus.EventTurnCompleted
	payload := interface{}(tc.Answer)
	switch tc.CurrentPhase {
	case PhaseCancelled:
		eventType = eventbus.EventTurnCancelled
		payload = tc.Question
	case PhaseError:
		eventType = eventbus.EventTurnFailed
		payload = tc.Question
	default:
		if err != nil {
			eventType = eventbus.EventTurnFailed
			payload = tc.Question
		}
	}

	event := eventbus.NewTurnEvent(eventType, tc.TurnID, payload, "Pitwall.Answer")
	event.WithMetadata("duration_ms", tc.GetTotalDuration().Milliseconds())
	if err != nil {
		event.WithMetadata("error", err.Error())
		event.WithMetadata("error_stage", tc.ErrorPhase)
	}
	p.bus.Publish(context.Background(), event)
}

// createStateMachine builds a state machine with all necessary transitions
// for the question-answering workflow.
func (p *Pitwall) createStateMachine() *StateMachine {
	// Determine if event bus should be used
	var bus eventbus.Bus
	if p.config.EnableEventBus {
		bus = p.bus
	}

	// Build components structure to pass to state machine
	components := pipelineComponents{
		Understander: p.understander,
		Planner:      p.planner,
		Executor:     p.executor,
		Aggregator:   p.aggregator,
		Generator:    p.generator,
		Evaluator:    p.evaluator,
		Memory:       p.memory,
		Tools:        make(map[string]Tool),
		Config:       p.config,
		GetSchemas: func() map[string]map[string]interface{} {
			return p.GetToolSchemas()
		},
	}

	// Add tools
	for name, tool := range p.tools {
		components.Tools[name] = tool
	}

	return CreateTurnStateMachine(components, bus)
}

// rememberTurn persists a digest of a finished turn as long-term facts.
// Best effort: failures are logged and never surfaced.
func (p *Pitwall) rememberTurn(tc *TurnContext) {
	if !p.config.EnableMemory || p.memory == nil || tc.SubjectID == "" || tc.Answer == nil {
		return
	}

	facts := turnFacts(tc)
	if len(facts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.memory.Remember(ctx, tc.SubjectID, facts); err != nil {
		log.Printf("memory remember failed (turn_id: %s): %v", tc.TurnID, err)
	}
}

// turnFacts distills remember-worthy facts from a finished turn.
func turnFacts(tc *TurnContext) []Fact {
	var facts []Fact
	u := tc.Understanding
	for _, d := range u.Drivers {
		facts = append(facts, Fact{Kind: "entity", Content: "asked about driver " + d})
	}
	if u.Intent != IntentUnknown && u.Intent != "" {
		facts = append(facts, Fact{Kind: "observation", Content: fmt.Sprintf("interested in %s analysis", u.Intent)})
	}
	return facts
}
