package cmd

import (
	"context"
	"fmt"

	"github.com/abhisek/vizlearn/internal/config"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/pipeline"
	"github.com/abhisek/vizlearn/internal/store"
)

// deps are the long-lived collaborators shared by serve and generate.
type deps struct {
	orch     *pipeline.Orchestrator
	recorder store.EventRecorder
	close    func()
}

// buildDeps opens the event log and builds the provider and orchestrator.
// The provider is nil when no key is configured; callers then have to
// supply one per request.
func buildDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (*deps, error) {
	d := &deps{close: func() {}}

	if cfg.Events.Enabled {
		path, err := eventsPath(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve events path: %w", err)
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		d.recorder = st.EventRepo()
		d.close = func() { st.Close() }
	}

	var provider llm.Provider
	if cfg.LLM.HasKey() {
		p, err := llm.NewProvider(ctx, cfg.LLM, log, d.recorder)
		if err != nil {
			d.close()
			return nil, err
		}
		provider = p
	} else {
		log.Warn("no LLM API key configured; requests must supply X-Api-Key", "provider", cfg.LLM.Provider)
	}

	var opts []pipeline.Option
	for task, tc := range cfg.Tasks.ByTask() {
		opts = append(opts, pipeline.WithTaskConfig(task, tc))
	}
	d.orch = pipeline.New(provider, log, opts...)
	return d, nil
}

// keyedProvider builds a fresh provider for a per-request key when no base
// provider exists.
func (d *deps) keyedProvider(cfg *config.Config, log *logger.Logger) func(ctx context.Context, key string) (llm.Provider, error) {
	if d.orch.Provider() != nil {
		return nil
	}
	return func(ctx context.Context, key string) (llm.Provider, error) {
		return llm.NewProvider(ctx, cfg.LLM.WithAPIKey(key), log, d.recorder)
	}
}
