package pitwall

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime tuning for the pipeline. Zero values are replaced
// with defaults during New.
type Config struct {
	// CompletenessThreshold is the default evaluator acceptance bar.
	// Per-intent thresholds layered on top take precedence.
	CompletenessThreshold float64 `yaml:"completeness_threshold"`

	// MaxIterations bounds evaluator-driven re-planning passes. The turn
	// runs at most MaxIterations+1 planner passes in total.
	MaxIterations int `yaml:"max_iterations"`

	// PerCallTimeout bounds each individual tool call.
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`

	// TurnDeadline bounds the whole turn. When it expires mid-pipeline the
	// turn short-circuits to generation with whatever analysis exists.
	TurnDeadline time.Duration `yaml:"turn_deadline"`

	// DeadlineGrace is the extra budget granted to generation after a
	// deadline short-circuit, on a detached context.
	DeadlineGrace time.Duration `yaml:"deadline_grace"`

	// LowConfidenceThreshold marks answers below this analysis confidence
	// as low confidence.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`

	// ConfidenceFloor is the understanding confidence below which the
	// planner may legitimately emit a zero-call plan.
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// MaxConcurrentCalls caps concurrent tool calls within one group.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`

	// SchemaRetries is how many times a schema-violating model response is
	// retried with the violation appended to the prompt.
	SchemaRetries int `yaml:"schema_retries"`

	// WeightExpression configures the aggregator's completeness weighting.
	// It is a govaluate expression over the boolean parameter "central".
	WeightExpression string `yaml:"weight_expression"`

	// EnableEventBus toggles lifecycle event publication.
	EnableEventBus bool `yaml:"enable_event_bus"`

	// EventBusBufferSize is the publish queue length per worker.
	EventBusBufferSize int `yaml:"event_bus_buffer_size"`

	// EventBusWorkerCount is the number of dispatch workers. Events that
	// share a turn id always land on the same worker, preserving per-turn
	// ordering.
	EventBusWorkerCount int `yaml:"event_bus_worker_count"`

	// EnableMemory toggles long-term memory recall and persistence.
	EnableMemory bool `yaml:"enable_memory"`
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		CompletenessThreshold:  0.7,
		MaxIterations:          2,
		PerCallTimeout:         15 * time.Second,
		TurnDeadline:           90 * time.Second,
		DeadlineGrace:          10 * time.Second,
		LowConfidenceThreshold: 0.4,
		ConfidenceFloor:        0.25,
		MaxConcurrentCalls:     8,
		SchemaRetries:          2,
		WeightExpression:       "central ? 1.0 : 0.4",
		EnableEventBus:         true,
		EventBusBufferSize:     100,
		EventBusWorkerCount:    4,
		EnableMemory:           true,
	}
}

// fileConfig mirrors Config for YAML decoding. Pointer fields distinguish
// unset keys from explicit zero values, and durations are parsed from
// strings like "90s".
type fileConfig struct {
	CompletenessThreshold  *float64 `yaml:"completeness_threshold"`
	MaxIterations          *int     `yaml:"max_iterations"`
	PerCallTimeout         *string  `yaml:"per_call_timeout"`
	TurnDeadline           *string  `yaml:"turn_deadline"`
	DeadlineGrace          *string  `yaml:"deadline_grace"`
	LowConfidenceThreshold *float64 `yaml:"low_confidence_threshold"`
	ConfidenceFloor        *float64 `yaml:"confidence_floor"`
	MaxConcurrentCalls     *int     `yaml:"max_concurrent_calls"`
	SchemaRetries          *int     `yaml:"schema_retries"`
	WeightExpression       *string  `yaml:"weight_expression"`
	EnableEventBus         *bool    `yaml:"enable_event_bus"`
	EventBusBufferSize     *int     `yaml:"event_bus_buffer_size"`
	EventBusWorkerCount    *int     `yaml:"event_bus_worker_count"`
	EnableMemory           *bool    `yaml:"enable_memory"`
}

// LoadConfig reads a YAML config file over the defaults. Unset keys keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, NewConfigurationError(fmt.Sprintf("failed to read config file '%s'", path), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, NewConfigurationError(fmt.Sprintf("failed to parse config file '%s'", path), err)
	}

	if fc.CompletenessThreshold != nil {
		cfg.CompletenessThreshold = *fc.CompletenessThreshold
	}
	if fc.MaxIterations != nil {
		cfg.MaxIterations = *fc.MaxIterations
	}
	if fc.LowConfidenceThreshold != nil {
		cfg.LowConfidenceThreshold = *fc.LowConfidenceThreshold
	}
	if fc.ConfidenceFloor != nil {
		cfg.ConfidenceFloor = *fc.ConfidenceFloor
	}
	if fc.MaxConcurrentCalls != nil {
		cfg.MaxConcurrentCalls = *fc.MaxConcurrentCalls
	}
	if fc.SchemaRetries != nil {
		cfg.SchemaRetries = *fc.SchemaRetries
	}
	if fc.WeightExpression != nil {
		cfg.WeightExpression = *fc.WeightExpression
	}
	if fc.EnableEventBus != nil {
		cfg.EnableEventBus = *fc.EnableEventBus
	}
	if fc.EventBusBufferSize != nil {
		cfg.EventBusBufferSize = *fc.EventBusBufferSize
	}
	if fc.EventBusWorkerCount != nil {
		cfg.EventBusWorkerCount = *fc.EventBusWorkerCount
	}
	if fc.EnableMemory != nil {
		cfg.EnableMemory = *fc.EnableMemory
	}

	durations := []struct {
		key   string
		raw   *string
		field *time.Duration
	}{
		{"per_call_timeout", fc.PerCallTimeout, &cfg.PerCallTimeout},
		{"turn_deadline", fc.TurnDeadline, &cfg.TurnDeadline},
		{"deadline_grace", fc.DeadlineGrace, &cfg.DeadlineGrace},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return cfg, NewConfigurationError(fmt.Sprintf("invalid duration for '%s' in '%s'", d.key, path), err)
		}
		*d.field = parsed
	}

	return cfg.withDefaults(), nil
}

// withDefaults fills zero values so a partially specified config stays sane.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CompletenessThreshold <= 0 {
		c.CompletenessThreshold = def.CompletenessThreshold
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = def.PerCallTimeout
	}
	if c.TurnDeadline <= 0 {
		c.TurnDeadline = def.TurnDeadline
	}
	if c.DeadlineGrace <= 0 {
		c.DeadlineGrace = def.DeadlineGrace
	}
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = def.LowConfidenceThreshold
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = def.ConfidenceFloor
	}
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
	if c.SchemaRetries <= 0 {
		c.SchemaRetries = def.SchemaRetries
	}
	if c.WeightExpression == "" {
		c.WeightExpression = def.WeightExpression
	}
	if c.EventBusBufferSize <= 0 {
		c.EventBusBufferSize = def.EventBusBufferSize
	}
	if c.EventBusWorkerCount <= 0 {
		c.EventBusWorkerCount = def.EventBusWorkerCount
	}
	return c
}
