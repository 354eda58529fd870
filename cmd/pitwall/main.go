package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/joho/godotenv"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/adapters"
	"github.com/pitwall-ai/pitwall/internal/aggregate"
	"github.com/pitwall-ai/pitwall/internal/cache"
	"github.com/pitwall-ai/pitwall/internal/eventbus"
	"github.com/pitwall-ai/pitwall/internal/executor"
	"github.com/pitwall-ai/pitwall/internal/generate"
	"github.com/pitwall-ai/pitwall/internal/memory"
	"github.com/pitwall-ai/pitwall/internal/planner"
	"github.com/pitwall-ai/pitwall/internal/server"
	"github.com/pitwall-ai/pitwall/internal/store"
	"github.com/pitwall-ai/pitwall/internal/tools"
	"github.com/pitwall-ai/pitwall/internal/understand"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		configPath = flag.String("config", "", "path to config YAML (optional)")
		dataPath   = flag.String("data", "pitwall.db", "path to the session data SQLite file")
		memoryPath = flag.String("memory", "memory.db", "path to the memory SQLite file")
		planPath   = flag.String("plans", "", "path to fallback plan templates YAML (optional)")
		modelName  = flag.String("model", "googleai/gemini-2.0-flash", "Genkit model name")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env: %v", err)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	cfg := pitwall.DefaultConfig()
	if *configPath != "" {
		loaded, err := pitwall.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	ctx := context.Background()
	g, err := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel(*modelName),
	)
	if err != nil {
		log.Fatalf("genkit initialization failed: %v", err)
	}
	model := adapters.NewGenkitModel(g)

	sessions, err := store.Open(*dataPath)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer sessions.Close()

	facts, err := memory.Open(*memoryPath)
	if err != nil {
		log.Fatalf("failed to open memory store: %v", err)
	}
	defer facts.Close()

	plannerOptions := []planner.PlannerOption{
		planner.WithSchemaRetries(cfg.SchemaRetries),
		planner.WithConfidenceFloor(cfg.ConfidenceFloor),
	}
	if *planPath != "" {
		templates, err := planner.LoadPlanFile(*planPath)
		if err != nil {
			log.Fatalf("failed to load plan templates: %v", err)
		}
		plannerOptions = append(plannerOptions, planner.WithTemplates(templates))
	}
	basePlanner := planner.New(model, plannerOptions...)
	cachedPlanner := adapters.NewCachingPlanner(basePlanner, cache.NewInMemoryCache(10*time.Minute))

	weights, err := aggregate.NewExpressionPolicy(cfg.WeightExpression)
	if err != nil {
		log.Fatalf("invalid weight expression: %v", err)
	}

	registry := tools.Registry(sessions, sessions, sessions)

	// One bus serves both the executor's tool-call events and the turn
	// lifecycle events, so the SSE stream sees the full trace.
	var bus eventbus.Bus
	if cfg.EnableEventBus {
		bus = eventbus.NewChannelBus(
			eventbus.WithBufferSize(cfg.EventBusBufferSize),
			eventbus.WithWorkerCount(cfg.EventBusWorkerCount),
		)
	}

	executorOptions := []executor.ExecutorOption{
		executor.WithMaxConcurrent(cfg.MaxConcurrentCalls),
		executor.WithCallTimeout(cfg.PerCallTimeout),
	}
	if bus != nil {
		executorOptions = append(executorOptions, executor.WithEventBus(bus))
	}
	exec := executor.NewExecutor(registry, executorOptions...)

	runtimeOptions := []pitwall.Option{
		pitwall.WithConfig(cfg),
		pitwall.WithUnderstander(understand.New(model, understand.WithSchemaRetries(cfg.SchemaRetries))),
		pitwall.WithPlanner(cachedPlanner),
		pitwall.WithExecutor(exec),
		pitwall.WithAggregator(aggregate.New(aggregate.WithWeightPolicy(weights))),
		pitwall.WithGenerator(generate.New(model)),
		pitwall.WithMemory(facts),
		pitwall.WithTools(registry),
	}
	if bus != nil {
		runtimeOptions = append(runtimeOptions, pitwall.WithEventBus(bus))
	}
	runtime, err := pitwall.New(ctx, runtimeOptions...)
	if err != nil {
		log.Fatalf("failed to build runtime: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(runtime).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s (%d tools registered)", *addr, len(runtime.ListTools()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if bus := runtime.EventBus(); bus != nil {
		bus.Close()
	}
}
