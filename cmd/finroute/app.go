package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/logging"
	"github.com/zen-systems/finroute/pkg/metrics"
	"github.com/zen-systems/finroute/pkg/router"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(routingPath string) (*app, error) {
	cfg, err := config.Load(routingPath)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &app{
		cfg:      cfg,
		logger:   logging.New(cfg.Env.LogLevel, cfg.Env.LogFormat),
		registry: reg,
		metrics:  metrics.New(reg),
	}, nil
}

// candidates turns the configured providers into chain candidates. A
// provider that cannot be constructed, usually for a missing key, is kept
// with its error so the chain reports it as dropped.
func (a *app) candidates(ctx context.Context) []fallback.Candidate {
	providers := a.cfg.RoutingConfig.SortedProviders()
	out := make([]fallback.Candidate, 0, len(providers))
	for _, p := range providers {
		c := fallback.Candidate{Name: p.Name, Priority: p.Priority}
		ad, err := adapter.New(ctx, p.Name, adapter.Options{
			APIKey:  a.cfg.APIKey(p.Name),
			Model:   p.Model,
			BaseURL: a.cfg.BaseURL(p),
		})
		if err != nil {
			c.Err = err
		} else {
			c.Adapter = ad
		}
		out = append(out, c)
	}
	return out
}

func (a *app) buildChain(ctx context.Context, probe bool) (*fallback.Chain, error) {
	rc := a.cfg.RoutingConfig
	return fallback.Build(ctx, a.candidates(ctx),
		fallback.WithLogger(a.logger),
		fallback.WithMetrics(a.metrics),
		fallback.WithAttemptTimeout(rc.AttemptTimeout),
		fallback.WithProbeTimeout(rc.ProbeTimeout),
		fallback.WithProbe(probe),
	)
}

// newRouter compiles the rule table and, unless fastOnly is set, builds the
// probed provider chain behind a Holder. The holder is nil in fast-only mode.
func (a *app) newRouter(ctx context.Context, fastOnly, probe bool) (*router.HybridRouter, *fallback.Holder, error) {
	rc := a.cfg.RoutingConfig
	rules, err := router.NewRuleSet(rc)
	if err != nil {
		return nil, nil, err
	}

	var (
		holder     *fallback.Holder
		classifier *router.Classifier
	)
	if !fastOnly {
		holder, err = fallback.NewHolder(ctx, func(ctx context.Context) (*fallback.Chain, error) {
			return a.buildChain(ctx, probe)
		}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build provider chain: %w", err)
		}
		classifier = router.NewClassifier(holder, rules,
			router.WithMaxTokens(rc.Classifier.MaxTokens),
			router.WithTemperature(rc.Classifier.Temperature),
		)
	}

	rt := router.NewHybridRouter(router.NewMatcher(rules), classifier,
		router.WithThreshold(rc.Threshold),
		router.WithLogger(a.logger),
		router.WithMetrics(a.metrics),
	)
	return rt, holder, nil
}
