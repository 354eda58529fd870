package adapters

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log"
	"sort"

	"github.com/pitwall-ai/pitwall"
)

// CachingPlanner wraps a Planner with a plan cache. Retry passes carrying
// evaluator feedback always bypass the cache: a cached plan is exactly what
// just proved insufficient.
type CachingPlanner struct {
	inner pitwall.Planner
	cache pitwall.Cache
}

// NewCachingPlanner creates a new caching wrapper around a planner.
func NewCachingPlanner(inner pitwall.Planner, cache pitwall.Cache) *CachingPlanner {
	return &CachingPlanner{
		inner: inner,
		cache: cache,
	}
}

// Plan implements the pitwall.Planner interface.
func (a *CachingPlanner) Plan(ctx context.Context, input pitwall.PlannerInput) (*pitwall.ExecutionPlan, error) {
	if input.Feedback != "" {
		return a.inner.Plan(ctx, input)
	}

	cacheKey := a.cacheKey(input)

	// Try fetching from cache
	if cached, found := a.cache.Get(ctx, cacheKey); found {
		if plan, ok := cached.(*pitwall.ExecutionPlan); ok {
			return plan, nil
		}
	}

	plan, err := a.inner.Plan(ctx, input)
	if err != nil {
		return nil, err
	}

	a.cache.Set(ctx, cacheKey, plan)
	return plan, nil
}

// cacheKey creates a stable key for caching planner results. Only the
// understanding and the registered tool names participate; feedback and
// iteration never reach the key because cached entries are first-pass only.
func (a *CachingPlanner) cacheKey(input pitwall.PlannerInput) string {
	toolNames := make([]string, 0, len(input.ToolSchemas))
	for name := range input.ToolSchemas {
		toolNames = append(toolNames, name)
	}
	sort.Strings(toolNames)

	cacheable := struct {
		Understanding pitwall.QueryUnderstanding `json:"understanding"`
		Tools         []string                   `json:"tools"`
	}{
		Understanding: input.Understanding,
		Tools:         toolNames,
	}

	inputBytes, err := json.Marshal(cacheable)
	if err != nil {
		log.Printf("Failed to marshal planner input for cache key: %v", err)
		// Fallback to a simpler key if marshalling fails
		return "planner:" + string(input.Understanding.Intent)
	}

	hasher := sha1.New()
	hasher.Write(inputBytes)
	return "planner:" + hex.EncodeToString(hasher.Sum(nil))
}
