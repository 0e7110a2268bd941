// Package chain executes a canonical configuration: every data item of every
// source runs concurrently, each result is filtered and optionally scripted,
// items are merged per source and sources are collected per component.
//
// The chain favors rendering something over failing fast. A failed item
// contributes its default value and the component result is still a success.
// Only structural problems, such as an item type without an executor, fail the run.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/executor"
	"github.com/c360/semwidgets/pkg/pathutil"
	"github.com/c360/semwidgets/pkg/timestamp"
)

// CompleteKey holds the merged map of all sources inside ComponentData.
const CompleteKey = "complete"

// Runner executes single items. *executor.Registry satisfies it.
type Runner interface {
	Execute(ctx context.Context, in executor.Input) datasource.Result
	Has(t datasource.ItemType) bool
}

// SourceCache serves fresh per-source data for the cache short-circuit.
type SourceCache interface {
	GetSourceData(componentID, sourceID string) (any, bool)
}

// Options controls one run.
type Options struct {
	// ForceRefresh skips the cache short-circuit.
	ForceRefresh bool
	// Params are execution parameters passed to every executor and script.
	Params map[string]any
}

// ItemOutcome describes how one data item fared.
type ItemOutcome struct {
	SourceID     string               `json:"sourceId"`
	Index        int                  `json:"index"`
	Type         datasource.ItemType  `json:"type"`
	Success      bool                 `json:"success"`
	ErrorCode    datasource.ErrorCode `json:"errorCode,omitempty"`
	Error        string               `json:"error,omitempty"`
	ResponseTime int64                `json:"responseTime"`
}

// Outcome is the result of a run.
type Outcome struct {
	Success bool `json:"success"`
	// ComponentData maps each sourceId to its merged value, plus CompleteKey.
	ComponentData map[string]any       `json:"componentData,omitempty"`
	Error         string               `json:"error,omitempty"`
	ErrorCode     datasource.ErrorCode `json:"errorCode,omitempty"`
	Items         []ItemOutcome        `json:"items,omitempty"`
	FromCache     bool                 `json:"fromCache"`
	Timestamp     int64                `json:"timestamp"`
}

// Sources returns ComponentData without the CompleteKey entry.
func (o Outcome) Sources() map[string]any {
	out := make(map[string]any, len(o.ComponentData))
	for k, v := range o.ComponentData {
		if k != CompleteKey {
			out[k] = v
		}
	}
	return out
}

// Chain runs configurations.
type Chain struct {
	runner    Runner
	evaluator *executor.Evaluator
	cache     SourceCache
	logger    *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithCache enables the short-circuit for runs without ForceRefresh.
func WithCache(cache SourceCache) Option {
	return func(c *Chain) { c.cache = cache }
}

// WithEvaluator shares an expression evaluator for customScript processing.
func WithEvaluator(ev *executor.Evaluator) Option {
	return func(c *Chain) {
		if ev != nil {
			c.evaluator = ev
		}
	}
}

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a chain over runner.
func New(runner Runner, opts ...Option) *Chain {
	c := &Chain{
		runner:    runner,
		evaluator: executor.NewEvaluator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type itemResult struct {
	value   any
	success bool
}

// Execute runs cfg. It never panics and never returns a Go error.
func (c *Chain) Execute(ctx context.Context, cfg *datasource.Configuration, opts Options) Outcome {
	if cfg == nil || len(cfg.DataSources) == 0 {
		return failed(datasource.CodeInvalidConfig, "configuration has no data sources")
	}
	for _, src := range cfg.DataSources {
		for _, item := range src.DataItems {
			if !c.runner.Has(item.Item.Type) {
				return failed(datasource.CodeExecutorNotFound,
					fmt.Sprintf("no executor for item type %q in source %s", item.Item.Type, src.SourceID))
			}
		}
	}

	if !opts.ForceRefresh && c.cache != nil {
		if data, ok := c.fromCache(cfg); ok {
			return Outcome{Success: true, ComponentData: data, FromCache: true, Timestamp: timestamp.Now()}
		}
	}

	results := make([][]itemResult, len(cfg.DataSources))
	outcomes := make([][]ItemOutcome, len(cfg.DataSources))
	var wg sync.WaitGroup
	for i, src := range cfg.DataSources {
		results[i] = make([]itemResult, len(src.DataItems))
		outcomes[i] = make([]ItemOutcome, len(src.DataItems))
		for j, item := range src.DataItems {
			wg.Add(1)
			go func(i, j int, sourceID string, item datasource.DataItem) {
				defer wg.Done()
				results[i][j], outcomes[i][j] = c.runItem(ctx, sourceID, j, item, opts.Params)
			}(i, j, src.SourceID, item)
		}
	}
	wg.Wait()

	data := make(map[string]any, len(cfg.DataSources)+1)
	complete := make(map[string]any, len(cfg.DataSources))
	var items []ItemOutcome
	for i, src := range cfg.DataSources {
		merged := merge(src.MergeStrategy.Type, results[i])
		data[src.SourceID] = merged
		complete[src.SourceID] = merged
		items = append(items, outcomes[i]...)
	}
	data[CompleteKey] = complete

	return Outcome{Success: true, ComponentData: data, Items: items, Timestamp: timestamp.Now()}
}

func (c *Chain) fromCache(cfg *datasource.Configuration) (map[string]any, bool) {
	data := make(map[string]any, len(cfg.DataSources)+1)
	complete := make(map[string]any, len(cfg.DataSources))
	for _, src := range cfg.DataSources {
		v, ok := c.cache.GetSourceData(cfg.ComponentID, src.SourceID)
		if !ok {
			return nil, false
		}
		data[src.SourceID] = v
		complete[src.SourceID] = v
	}
	data[CompleteKey] = complete
	return data, true
}

func (c *Chain) runItem(ctx context.Context, sourceID string, index int, item datasource.DataItem, params map[string]any) (itemResult, ItemOutcome) {
	start := time.Now()
	outcome := ItemOutcome{SourceID: sourceID, Index: index, Type: item.Item.Type}

	res := c.runner.Execute(ctx, executor.Input{Type: item.Item.Type, Config: item.Item.Config, Params: params})
	value, err := c.process(res, item.Processing, params)
	outcome.ResponseTime = time.Since(start).Milliseconds()

	switch {
	case !res.Success:
		outcome.ErrorCode, outcome.Error = res.ErrorCode, res.Error
	case err != nil:
		outcome.ErrorCode, outcome.Error = datasource.CodeTransformError, err.Error()
	default:
		outcome.Success = true
		return itemResult{value: value, success: true}, outcome
	}

	c.logger.Debug("data item degraded to default value",
		"source_id", sourceID, "index", index, "type", item.Item.Type,
		"error_code", outcome.ErrorCode, "error", outcome.Error)
	return itemResult{value: item.Processing.DefaultValue}, outcome
}

func (c *Chain) process(res datasource.Result, p datasource.Processing, params map[string]any) (any, error) {
	if !res.Success {
		return nil, nil
	}
	value := res.Data
	if !pathutil.IsRoot(p.Path()) {
		value = pathutil.Lookup(value, p.Path())
	}
	if p.CustomScript == "" {
		return value, nil
	}
	if params == nil {
		params = map[string]any{}
	}
	return c.evaluator.Eval(p.CustomScript, map[string]any{"data": value, "params": params})
}

func failed(code datasource.ErrorCode, msg string) Outcome {
	return Outcome{Success: false, Error: msg, ErrorCode: code, Timestamp: timestamp.Now()}
}
