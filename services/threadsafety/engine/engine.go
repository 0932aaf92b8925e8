// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs the thread-safety rules over source units.
//
// Description:
//
//	An Engine is built once from a rules.Config. For each unit it
//	resolves the scope map once, runs every enabled rule that is not
//	excluded for the unit's path, isolates rule failures, and drops
//	diagnostics suppressed by inline directives. Units are independent
//	and may be evaluated in parallel.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. It holds no per-unit state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/threadguard/pkg/logging"
	"github.com/AleutianAI/threadguard/pkg/validation"
	"github.com/AleutianAI/threadguard/services/threadsafety/directive"
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/ruby"
	"github.com/AleutianAI/threadguard/services/threadsafety/rules"
	"github.com/AleutianAI/threadguard/services/threadsafety/scope"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Unit is one already-parsed source unit.
type Unit struct {
	// Path names the unit in reports and is matched against per-rule
	// Exclude globs. May be empty.
	Path string

	// Root is the unit's tree. Required.
	Root *tree.Node

	// Content is the source text. Optional; without it inline
	// directives are not applied.
	Content []byte

	// Comments holds the byte spans of comments in Content.
	Comments []tree.Range
}

// Source is one unparsed Ruby source unit.
type Source struct {
	Path    string
	Content []byte
}

// Analysis is the result of AnalyzeSource.
type Analysis struct {
	Report *report.Report

	// SyntaxErrors lists regions the parser could not read. The report
	// covers the rest of the unit.
	SyntaxErrors []*ruby.SyntaxError
}

// Engine evaluates rules over source units.
//
// Example:
//
//	eng, err := engine.New(rules.DefaultConfig(), engine.WithLogger(logger))
//	if err != nil {
//	    return fmt.Errorf("engine: %w", err)
//	}
//	res, err := eng.AnalyzeSource(ctx, engine.Source{Path: path, Content: src})
type Engine struct {
	cfg      rules.Config
	rules    []rules.Rule
	resolver *scope.Resolver
	parser   *ruby.Parser
	logger   *slog.Logger
	workers  int
}

// New builds an Engine.
//
// Inputs:
//
//	cfg  - Rule configuration. Validated here.
//	opts - Functional options.
//
// Outputs:
//
//	*Engine - Ready for use.
//	error   - Wraps rules.ErrInvalidConfig when cfg is invalid, or
//	          ErrInvalidRule when an extra rule has a bad or duplicate ID.
func New(cfg rules.Config, opts ...Option) (*Engine, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	options.applyDefaults()

	built, err := rules.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("building rules: %w", err)
	}
	built = append(built, options.ExtraRules...)

	ids := make([]string, len(built))
	for i, r := range built {
		ids[i] = r.ID()
	}
	if err := validation.ValidateRuleIDs(ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Nop().Slog()
	}

	return &Engine{
		cfg:      cfg,
		rules:    built,
		resolver: scope.NewResolver(cfg.ScopeOptions()),
		parser:   options.Parser,
		logger:   logger,
		workers:  options.Concurrency,
	}, nil
}

// RuleIDs returns the IDs of the rules the engine runs, in run order.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate runs the rules over one unit under a fresh run ID.
//
// Description:
//
//	A rule that returns an error or panics is recorded in the report's
//	Errors and its diagnostics are dropped; the other rules still run.
//	A malformed tree aborts the whole unit.
//
// Outputs:
//
//	*report.Report - Diagnostics in rule order, then source order.
//	error          - *UnitError when no report could be produced.
func (e *Engine) Evaluate(ctx context.Context, unit Unit) (*report.Report, error) {
	return e.evaluate(ctx, uuid.NewString(), unit)
}

// EvaluateAll evaluates units in parallel under one shared run ID.
//
// Outputs:
//
//	[]*report.Report - One entry per unit in input order. Entries for
//	                   units that failed are nil.
//	error            - Joined *UnitError values for the failed units, or
//	                   the context error if ctx ended first (with nil
//	                   reports).
func (e *Engine) EvaluateAll(ctx context.Context, units []Unit) ([]*report.Report, error) {
	runID := uuid.NewString()
	reports := make([]*report.Report, len(units))

	unitErrs, err := e.forEach(ctx, len(units), func(ctx context.Context, i int) error {
		rep, err := e.evaluate(ctx, runID, units[i])
		reports[i] = rep
		return err
	})
	if err != nil {
		return nil, err
	}
	return reports, errors.Join(unitErrs...)
}

// AnalyzeSource parses one Ruby source and evaluates it under a fresh
// run ID.
func (e *Engine) AnalyzeSource(ctx context.Context, src Source) (*Analysis, error) {
	return e.analyze(ctx, uuid.NewString(), src)
}

// AnalyzeSources parses and evaluates sources in parallel under one
// shared run ID. Results follow EvaluateAll's conventions.
func (e *Engine) AnalyzeSources(ctx context.Context, srcs []Source) ([]*Analysis, error) {
	runID := uuid.NewString()
	results := make([]*Analysis, len(srcs))

	unitErrs, err := e.forEach(ctx, len(srcs), func(ctx context.Context, i int) error {
		res, err := e.analyze(ctx, runID, srcs[i])
		results[i] = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, errors.Join(unitErrs...)
}

// forEach runs fn for indices [0, n) with bounded parallelism. It
// returns the failure of each index, or an error only when ctx ended.
func (e *Engine) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) (unitErrs []error, err error) {
	errs := make([]error, n)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(gCtx, i); err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}
	return errs, nil
}

func (e *Engine) analyze(ctx context.Context, runID string, src Source) (*Analysis, error) {
	parsed, err := e.parser.Parse(ctx, src.Content, src.Path)
	if err != nil {
		e.logger.Error("parse failed",
			slog.String("run_id", runID),
			slog.String("path", src.Path),
			slog.String("error", err.Error()),
		)
		return nil, &UnitError{Path: src.Path, Err: err}
	}
	for _, se := range parsed.Errors {
		e.logger.Warn("syntax error",
			slog.String("run_id", runID),
			slog.String("path", src.Path),
			slog.Int("line", se.Line),
		)
	}

	rep, err := e.evaluate(ctx, runID, Unit{
		Path:     src.Path,
		Root:     parsed.Root,
		Content:  src.Content,
		Comments: parsed.Comments,
	})
	if err != nil {
		return nil, err
	}
	return &Analysis{Report: rep, SyntaxErrors: parsed.Errors}, nil
}

func (e *Engine) evaluate(ctx context.Context, runID string, unit Unit) (*report.Report, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine.Engine.Evaluate",
		trace.WithAttributes(
			attribute.String("threadguard.run_id", runID),
			attribute.String("threadguard.path", unit.Path),
			attribute.Int("threadguard.rule_count", len(e.rules)),
		),
	)
	defer span.End()

	logger := e.logger.With(slog.String("run_id", runID), slog.String("path", unit.Path))
	logger.Debug("evaluating unit")

	rep, err := e.evaluateUnit(ctx, logger, runID, unit)
	unitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		unitsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("unit evaluation failed", slog.String("error", err.Error()))
		return nil, &UnitError{Path: unit.Path, Err: err}
	}

	status := "ok"
	if len(rep.Errors) > 0 {
		status = "partial"
	}
	unitsTotal.WithLabelValues(status).Inc()
	span.SetAttributes(
		attribute.Int("threadguard.diagnostic_count", len(rep.Diagnostics)),
		attribute.Int("threadguard.rule_error_count", len(rep.Errors)),
	)
	logger.Debug("unit evaluated",
		slog.Int("diagnostics", len(rep.Diagnostics)),
		slog.Int("rule_errors", len(rep.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return rep, nil
}

func (e *Engine) evaluateUnit(ctx context.Context, logger *slog.Logger, runID string, unit Unit) (*report.Report, error) {
	if unit.Root == nil {
		return nil, ErrNoTree
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scopes, err := e.resolver.Resolve(unit.Root)
	if err != nil {
		return nil, err
	}
	pass := &rules.Pass{Root: unit.Root, Scopes: scopes}

	reporter := report.NewReporter()
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := rule.ID()
		if rc, ok := e.cfg.For(id); ok && rc.Excluded(unit.Path) {
			logger.Debug("rule excluded for path", slog.String("rule", id))
			continue
		}

		diags, err := e.runRule(logger, rule, pass)
		if err != nil {
			if errors.Is(err, tree.ErrMalformedTree) {
				return nil, err
			}
			reason := "error"
			if errors.Is(err, ErrRulePanic) {
				reason = "panic"
			}
			ruleFailuresTotal.WithLabelValues(id, reason).Inc()
			logger.Warn("rule failed", slog.String("rule", id), slog.String("error", err.Error()))
			reporter.Fail(id, err)
			continue
		}
		reporter.Add(id, diags)
	}

	if len(unit.Content) > 0 {
		applyDirectives(reporter, directive.Parse(unit.Content, unit.Comments))
	}

	rep := reporter.Report(runID, unit.Path)
	for _, d := range rep.Diagnostics {
		diagnosticsTotal.WithLabelValues(d.RuleID).Inc()
	}
	return rep, nil
}

// runRule calls rule.Check, converting a panic into an error wrapping
// ErrRulePanic.
func (e *Engine) runRule(logger *slog.Logger, rule rules.Rule, pass *rules.Pass) (diags []report.Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			logger.Error("panic in rule",
				slog.String("rule", rule.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			diags = nil
			err = fmt.Errorf("%w: %v", ErrRulePanic, r)
		}
	}()
	return rule.Check(pass)
}

func applyDirectives(reporter *report.Reporter, set *directive.Set) {
	if set.Len() == 0 {
		return
	}
	reporter.Filter(func(d report.Diagnostic) bool {
		if set.Suppressed(d.RuleID, d.Range.Start) {
			suppressedTotal.WithLabelValues(d.RuleID).Inc()
			return false
		}
		return true
	})
}
