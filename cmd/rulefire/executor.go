package main

import (
	"fmt"

	"github.com/torosent/rulefire/internal/auth"
	"github.com/torosent/rulefire/internal/config"
	"github.com/torosent/rulefire/internal/httpclient"
	"github.com/torosent/rulefire/internal/metrics"
	"github.com/torosent/rulefire/internal/tracing"
	"github.com/torosent/rulefire/internal/trigger"
)

func buildAuthFactory(cfg *config.Config) (auth.Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	scheme, err := auth.ParseScheme(cfg.AuthScheme)
	if err != nil {
		return nil, err
	}
	return auth.NewFactory(scheme, cfg.CookieName)
}

func buildExecutor(cfg *config.Config, recorder metrics.Recorder, tp *tracing.Provider) (*trigger.HTTPExecutor, *httpclient.RequestBuilder, error) {
	factory, err := buildAuthFactory(cfg)
	if err != nil {
		return nil, nil, err
	}
	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return nil, nil, err
	}

	policy := trigger.PolicyAnyResponse
	if cfg.StrictStatus {
		policy = trigger.PolicyStrict2xx
	}

	exec, err := trigger.NewHTTPExecutor(trigger.Options{
		Client:    httpclient.NewClient(cfg.Timeout),
		Builder:   builder,
		Auth:      factory,
		Policy:    policy,
		Recorder:  recorder,
		Tracer:    tp.Tracer(),
		Propagate: tp.ShouldPropagate(),
	})
	if err != nil {
		return nil, nil, err
	}
	return exec, builder, nil
}
