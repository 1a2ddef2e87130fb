// Command segue runs the orchestrator as an interactive terminal assistant.
//
// Configuration comes from segue.toml (override with SEGUE_CONFIG), a .env
// file, and SEGUE_* env vars.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seguehq/segue"
	"github.com/seguehq/segue/atlassian"
	"github.com/seguehq/segue/internal/config"
	"github.com/seguehq/segue/mcp"
	"github.com/seguehq/segue/observer"
	"github.com/seguehq/segue/provider/resolve"
	"github.com/seguehq/segue/store/postgres"
	"github.com/seguehq/segue/store/sqlite"
)

func main() {
	cfg := config.Load(os.Getenv("SEGUE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// LLM provider
	llm, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Observability
	var tracer segue.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(context.Background(), pricing)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
		llm = observer.WrapProvider(llm, cfg.LLM.Model, inst)
		tracer = observer.NewTracer()
	}

	// Intent classifier
	classifierOpts := []segue.ClassifierOption{
		segue.WithConfidenceThreshold(cfg.Intent.ConfidenceThreshold),
		segue.WithIntentTimeout(time.Duration(cfg.Intent.TimeoutSeconds) * time.Second),
		segue.WithIntentTemperature(cfg.Intent.Temperature),
		segue.WithIntentCacheSize(cfg.Intent.CacheSize),
		segue.WithClassifierLogger(logger),
	}
	if cfg.Intent.UseLLM {
		classifierOpts = append(classifierOpts, segue.WithLLMFallback(llm))
	}
	classifier := segue.NewClassifier(classifierOpts...)

	// Tool dispatch: remote protocol client plus direct API fallbacks.
	dispatcherOpts := []segue.DispatcherOption{
		segue.WithDispatcherLogger(logger),
		segue.WithDispatcherSpaceKey(cfg.Wiki.SpaceKey),
	}
	if tracer != nil {
		dispatcherOpts = append(dispatcherOpts, segue.WithDispatcherTracer(tracer))
	}
	if cfg.Tools.UseRemote && cfg.Tools.Command != "" {
		remote := mcp.NewClient(mcp.Config{
			Command: cfg.Tools.Command,
			Args:    cfg.Tools.Args,
		}, mcp.WithLogger(logger))
		defer remote.Close()
		dispatcherOpts = append(dispatcherOpts, segue.WithDispatcherRemote(remote))
	}
	atlCfg := atlassian.Config{
		BaseURL:  cfg.Ticket.BaseURL,
		Email:    cfg.Ticket.AuthUser,
		APIToken: cfg.Ticket.AuthToken,
	}
	if cfg.Ticket.BaseURL != "" {
		dispatcherOpts = append(dispatcherOpts,
			segue.WithDispatcherJira(atlassian.NewJira(atlCfg, cfg.Ticket.ProjectKey)),
			segue.WithDispatcherBaseURL(cfg.Ticket.BaseURL))
	}
	if cfg.Wiki.BaseURL != "" {
		wikiCfg := atlCfg
		wikiCfg.BaseURL = cfg.Wiki.BaseURL
		dispatcherOpts = append(dispatcherOpts,
			segue.WithDispatcherWiki(atlassian.NewConfluence(wikiCfg, cfg.Wiki.SpaceKey)))
	}
	dispatcher := segue.NewDispatcher(dispatcherOpts...)

	// Orchestrator
	orchOpts := []segue.Option{
		segue.WithClassifier(classifier),
		segue.WithDispatcher(dispatcher),
		segue.WithLogger(logger),
	}
	if tracer != nil {
		orchOpts = append(orchOpts, segue.WithTracer(tracer))
	}
	if cfg.Wiki.BaseURL != "" {
		wikiCfg := atlCfg
		wikiCfg.BaseURL = cfg.Wiki.BaseURL
		orchOpts = append(orchOpts,
			segue.WithRetriever(atlassian.NewPageRetriever(wikiCfg, cfg.Wiki.SpaceKey)))
	}
	if store := openStore(cfg, logger); store != nil {
		defer store.Close()
		orchOpts = append(orchOpts, segue.WithMemory(store))
	}

	orch := segue.New(llm, orchOpts...)
	repl(orch, inst)
}

// openStore opens the configured memory store, or nil when persistence is
// disabled or unavailable.
func openStore(cfg config.Config, logger *slog.Logger) segue.MemoryStore {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Database.Driver {
	case "sqlite":
		s := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			logger.Warn("sqlite init failed, continuing without memory", "err", err)
			s.Close()
			return nil
		}
		return s
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Warn("postgres connect failed, continuing without memory", "err", err)
			return nil
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			logger.Warn("postgres init failed, continuing without memory", "err", err)
			s.Close()
			return nil
		}
		return s
	default:
		return nil
	}
}

// repl reads lines from stdin and prints replies until EOF.
func repl(orch *segue.Orchestrator, inst *observer.Instruments) {
	conversationID := segue.NewID()
	var history []segue.Message

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("segue ready. Ctrl-D to exit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		reply, diag := orch.Handle(context.Background(), segue.Request{
			UserInput:      input,
			History:        history,
			ConversationID: conversationID,
		})
		fmt.Println(reply)

		if inst != nil {
			ctx := context.Background()
			inst.RecordIntent(ctx, diag.Decision)
			inst.RecordRequest(ctx, diag.Elapsed)
			if diag.Ticket != nil {
				inst.RecordTool(ctx, "create_ticket", *diag.Ticket)
			}
			if diag.Page != nil {
				inst.RecordTool(ctx, "create_page", *diag.Page)
			}
		}

		history = append(history,
			segue.UserMessage(input),
			segue.AssistantMessage(reply))
	}
}
