// ABOUTME: Builds the serving stack from CLI config: engine, relay with metrics, story library, and web server.
package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/journal"
	"github.com/2389-research/storyteller/llm"
	"github.com/2389-research/storyteller/relay"
	"github.com/2389-research/storyteller/stories"
	"github.com/2389-research/storyteller/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var errMissingAPIKey = errors.New("the builtin engine needs OPENAI_API_KEY")

// buildEngine constructs the configured engine with the given credential.
func buildEngine(cfg config, apiKey string) (engine.Engine, error) {
	switch cfg.engine {
	case engineGPTScript:
		return engine.NewGPTScript(engine.GPTScriptConfig{
			Binary: cfg.gptscriptBin,
			APIKey: apiKey,
		}), nil
	case engineBuiltin:
		if apiKey == "" {
			return nil, errMissingAPIKey
		}
		bc := engine.BuiltinConfig{
			Writer: llm.NewOpenAICompatClient(apiKey, cfg.model, cfg.baseURL),
			Model:  cfg.model,
		}
		if cfg.illustrate {
			bc.Illustrator = llm.NewImageClient(apiKey, cfg.imageModel, cfg.baseURL)
		}
		return engine.NewBuiltin(bc), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.engine)
	}
}

// buildServer wires the engine into the relay and the relay into the web
// server. Relay, Go runtime, and process metrics share one registry. The
// returned cleanup closes the run journal.
func buildServer(cfg config, apiKey string) (*web.Server, func(), error) {
	eng, err := buildEngine(cfg, apiKey)
	if err != nil {
		return nil, nil, err
	}

	relayCfg := relay.Config{
		Engine:            eng,
		Script:            cfg.script,
		RunTimeout:        cfg.runTimeout,
		MaxConcurrentRuns: cfg.maxConcurrentRuns,
	}
	cleanup := func() {}
	if cfg.journalPath != "" {
		j, err := journal.Open(cfg.journalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open run journal: %w", err)
		}
		relayCfg.Journal = j
		cleanup = func() {
			if err := j.Close(); err != nil {
				log.Printf("component=cli action=close_journal err=%v", err)
			}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	relayCfg.Metrics = relay.NewMetrics(reg)
	handler := relay.NewHandler(relayCfg)

	srv, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.addr,
		Library:     stories.NewLibrary(cfg.storiesDir),
		Relay:       handler,
		Gatherer:    reg,
		StoriesPath: cfg.storiesDir,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build server: %w", err)
	}
	return srv, cleanup, nil
}
