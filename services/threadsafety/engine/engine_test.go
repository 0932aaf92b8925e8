// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/threadguard/pkg/logging"
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/ruby"
	"github.com/AleutianAI/threadguard/services/threadsafety/rules"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree/treetest"
)

// =============================================================================
// TEST RULES
// =============================================================================

type panickingRule struct{}

func (panickingRule) ID() string          { return "panics" }
func (panickingRule) Description() string { return "always panics" }
func (panickingRule) Check(*rules.Pass) ([]report.Diagnostic, error) {
	panic("index out of range")
}

type failingRule struct{ err error }

func (failingRule) ID() string          { return "fails" }
func (failingRule) Description() string { return "always fails" }
func (r failingRule) Check(*rules.Pass) ([]report.Diagnostic, error) {
	return []report.Diagnostic{{Message: "discarded"}}, r.err
}

type namedRule struct{ id string }

func (r namedRule) ID() string                                   { return r.id }
func (namedRule) Description() string                            { return "does nothing" }
func (namedRule) Check(*rules.Pass) ([]report.Diagnostic, error) { return nil, nil }

func newEngine(t *testing.T, cfg rules.Config, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(cfg, opts...)
	require.NoError(t, err)
	return eng
}

func ruleIDs(diags []report.Diagnostic) []string {
	ids := make([]string, len(diags))
	for i, d := range diags {
		ids[i] = d.RuleID
	}
	return ids
}

// threadAndClassIvar builds:
//
//	Thread.new { }
//	class Foo
//	  def self.bar
//	    @bar = 1
//	  end
//	end
func threadAndClassIvar() *tree.Node {
	b := treetest.New()
	return b.Program(
		b.BlockCall(b.Const("Thread"), "new", nil),
		b.Class("Foo", b.Defs("bar", nil, b.Ivasgn("@bar", b.Int("1")))),
	)
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("default rules in fixed order", func(t *testing.T) {
		eng := newEngine(t, rules.DefaultConfig())
		assert.Equal(t, []string{
			rules.NewThreadID,
			rules.DirChdirID,
			rules.ClassInstanceVariableID,
			rules.RackMiddlewareInstanceVariableID,
		}, eng.RuleIDs())
	})

	t.Run("disabled rules are skipped and extra rules appended", func(t *testing.T) {
		cfg := rules.DefaultConfig()
		cfg.DirChdir.Enabled = false
		eng := newEngine(t, cfg, WithExtraRules(panickingRule{}))
		assert.Equal(t, []string{
			rules.NewThreadID,
			rules.ClassInstanceVariableID,
			rules.RackMiddlewareInstanceVariableID,
			"panics",
		}, eng.RuleIDs())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := rules.DefaultConfig()
		cfg.NewThread.Exclude = []string{"lib/[abc"}
		_, err := New(cfg)
		assert.ErrorIs(t, err, rules.ErrInvalidConfig)
	})

	t.Run("extra rule with taken id", func(t *testing.T) {
		_, err := New(rules.DefaultConfig(), WithExtraRules(failingRule{}, failingRule{}))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("extra rule shadowing a configured rule", func(t *testing.T) {
		_, err := New(rules.DefaultConfig(), WithExtraRules(namedRule{id: rules.NewThreadID}))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("extra rule with malformed id", func(t *testing.T) {
		_, err := New(rules.DefaultConfig(), WithExtraRules(namedRule{id: "Bad Rule"}))
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("concurrency defaults", func(t *testing.T) {
		eng := newEngine(t, rules.DefaultConfig(), WithConcurrency(0))
		assert.GreaterOrEqual(t, eng.workers, 1)

		eng = newEngine(t, rules.DefaultConfig(), WithConcurrency(3))
		assert.Equal(t, 3, eng.workers)
	})
}

// =============================================================================
// EVALUATE
// =============================================================================

func TestEvaluate(t *testing.T) {
	eng := newEngine(t, rules.DefaultConfig())

	rep, err := eng.Evaluate(context.Background(), Unit{Path: "app/foo.rb", Root: threadAndClassIvar()})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, "app/foo.rb", rep.Path)
	assert.Equal(t, []string{rules.NewThreadID, rules.ClassInstanceVariableID}, ruleIDs(rep.Diagnostics))
	assert.Empty(t, rep.Errors)
	assert.NoError(t, rep.Err())
}

func TestEvaluate_Deterministic(t *testing.T) {
	eng := newEngine(t, rules.DefaultConfig())
	root := threadAndClassIvar()

	first, err := eng.Evaluate(context.Background(), Unit{Root: root})
	require.NoError(t, err)
	second, err := eng.Evaluate(context.Background(), Unit{Root: root})
	require.NoError(t, err)

	assert.Equal(t, first.Diagnostics, second.Diagnostics)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestEvaluate_NoTree(t *testing.T) {
	eng := newEngine(t, rules.DefaultConfig())

	_, err := eng.Evaluate(context.Background(), Unit{Path: "empty.rb"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTree)

	var unitErr *UnitError
	require.True(t, errors.As(err, &unitErr))
	assert.Equal(t, "empty.rb", unitErr.Path)
	assert.Contains(t, err.Error(), "empty.rb")
}

func TestEvaluate_MalformedTreeAbortsUnit(t *testing.T) {
	b := treetest.New()
	shared := b.Int("1")
	root := b.Program(shared, shared)

	eng := newEngine(t, rules.DefaultConfig())
	rep, err := eng.Evaluate(context.Background(), Unit{Root: root})
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, tree.ErrMalformedTree)
}

func TestEvaluate_RulePanicIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.New(logging.Config{Output: &logs, Level: logging.LevelDebug})
	eng := newEngine(t, rules.DefaultConfig(), WithExtraRules(panickingRule{}), WithLogger(logger.Slog()))

	rep, err := eng.Evaluate(context.Background(), Unit{Root: threadAndClassIvar()})
	require.NoError(t, err)

	assert.Equal(t, []string{rules.NewThreadID, rules.ClassInstanceVariableID}, ruleIDs(rep.Diagnostics))
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "panics", rep.Errors[0].RuleID)
	assert.ErrorIs(t, rep.Err(), ErrRulePanic)
	assert.Contains(t, logs.String(), "panic in rule")
}

func TestEvaluate_EmbedderLogger(t *testing.T) {
	level, err := logging.ParseLevel("debug")
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := logging.New(logging.Config{Level: level, JSON: true, Service: "ci-lint", Output: &logs}).
		With("repo", "shop")
	eng := newEngine(t, rules.DefaultConfig(), WithLogger(logger.Slog()))

	rep, err := eng.Evaluate(context.Background(), Unit{Path: "app/foo.rb", Root: threadAndClassIvar()})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"msg":"unit evaluated"`)
	assert.Contains(t, out, `"service":"ci-lint"`)
	assert.Contains(t, out, `"repo":"shop"`)
	assert.Contains(t, out, `"path":"app/foo.rb"`)
	assert.Contains(t, out, `"run_id":"`+rep.RunID+`"`)
}

func TestEvaluate_RuleErrorIsIsolated(t *testing.T) {
	boom := errors.New("boom")
	eng := newEngine(t, rules.DefaultConfig(), WithExtraRules(failingRule{err: boom}))

	rep, err := eng.Evaluate(context.Background(), Unit{Root: threadAndClassIvar()})
	require.NoError(t, err)

	for _, d := range rep.Diagnostics {
		assert.NotEqual(t, "fails", d.RuleID)
	}
	require.Len(t, rep.Errors, 1)
	assert.ErrorIs(t, rep.Err(), boom)
}

func TestEvaluate_Exclude(t *testing.T) {
	cfg := rules.DefaultConfig()
	cfg.NewThread.Exclude = []string{"spec/**/*_spec.rb"}
	eng := newEngine(t, cfg)

	rep, err := eng.Evaluate(context.Background(), Unit{Path: "spec/models/foo_spec.rb", Root: threadAndClassIvar()})
	require.NoError(t, err)
	assert.Equal(t, []string{rules.ClassInstanceVariableID}, ruleIDs(rep.Diagnostics))

	rep, err = eng.Evaluate(context.Background(), Unit{Path: "app/models/foo.rb", Root: threadAndClassIvar()})
	require.NoError(t, err)
	assert.Equal(t, []string{rules.NewThreadID, rules.ClassInstanceVariableID}, ruleIDs(rep.Diagnostics))
}

func TestEvaluate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newEngine(t, rules.DefaultConfig())
	_, err := eng.Evaluate(ctx, Unit{Root: threadAndClassIvar()})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// EVALUATE ALL
// =============================================================================

func TestEvaluateAll(t *testing.T) {
	b := treetest.New()
	units := []Unit{
		{Path: "a.rb", Root: threadAndClassIvar()},
		{Path: "b.rb", Root: b.Program(b.Call(b.Const("Dir"), "chdir", b.Str("/tmp")))},
		{Path: "c.rb"},
		{Path: "d.rb", Root: b.Program()},
	}

	eng := newEngine(t, rules.DefaultConfig(), WithConcurrency(2))
	reports, err := eng.EvaluateAll(context.Background(), units)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTree)
	require.Len(t, reports, 4)

	require.NotNil(t, reports[0])
	require.NotNil(t, reports[1])
	assert.Nil(t, reports[2])
	require.NotNil(t, reports[3])

	assert.Equal(t, "a.rb", reports[0].Path)
	assert.Equal(t, []string{rules.DirChdirID}, ruleIDs(reports[1].Diagnostics))
	assert.Empty(t, reports[3].Diagnostics)

	assert.Equal(t, reports[0].RunID, reports[1].RunID)
	assert.Equal(t, reports[0].RunID, reports[3].RunID)
}

func TestEvaluateAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newEngine(t, rules.DefaultConfig())
	reports, err := eng.EvaluateAll(ctx, []Unit{{Root: threadAndClassIvar()}})
	assert.Nil(t, reports)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateAll_Empty(t *testing.T) {
	eng := newEngine(t, rules.DefaultConfig())
	reports, err := eng.EvaluateAll(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, reports)
}

// =============================================================================
// ANALYZE SOURCE
// =============================================================================

func analyze(t *testing.T, eng *Engine, src string) *Analysis {
	t.Helper()
	res, err := eng.AnalyzeSource(context.Background(), Source{Path: "test.rb", Content: []byte(src)})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	return res
}

func text(src string, r tree.Range) string {
	return src[r.Start:r.End]
}

func TestAnalyzeSource_NewThread(t *testing.T) {
	src := "Thread.new { compute }\n"
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	require.Len(t, res.Report.Diagnostics, 1)
	d := res.Report.Diagnostics[0]
	assert.Equal(t, rules.NewThreadID, d.RuleID)
	assert.Equal(t, "Thread.new", text(src, d.Range))
	assert.Equal(t, "Avoid starting new threads with `Thread.new`.", d.Message)
}

func TestAnalyzeSource_DirChdir(t *testing.T) {
	src := "Dir.chdir(\"/tmp\") do\n  run\nend\nFileUtils.cd(\"/var\")\n"

	t.Run("default", func(t *testing.T) {
		res := analyze(t, newEngine(t, rules.DefaultConfig()), src)
		require.Len(t, res.Report.Diagnostics, 2)
		assert.Equal(t, `Dir.chdir("/tmp")`, text(src, res.Report.Diagnostics[0].Range))
		assert.Equal(t, "Avoid using `FileUtils.cd` due to its process-wide effect.", res.Report.Diagnostics[1].Message)
	})

	t.Run("allow call with block", func(t *testing.T) {
		cfg := rules.DefaultConfig()
		cfg.DirChdir.AllowCallWithBlock = true
		res := analyze(t, newEngine(t, cfg), src)
		require.Len(t, res.Report.Diagnostics, 1)
		assert.Equal(t, `FileUtils.cd("/var")`, text(src, res.Report.Diagnostics[0].Range))
	})
}

func TestAnalyzeSource_ClassInstanceVariable(t *testing.T) {
	src := strings.Join([]string{
		"class Foo",
		"  def self.bar",
		"    @bar = 1",
		"  end",
		"",
		"  def baz",
		"    @baz = 2",
		"  end",
		"end",
		"",
	}, "\n")
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	require.Len(t, res.Report.Diagnostics, 1)
	d := res.Report.Diagnostics[0]
	assert.Equal(t, rules.ClassInstanceVariableID, d.RuleID)
	assert.Equal(t, "@bar", text(src, d.Range))
}

func TestAnalyzeSource_RackMiddleware(t *testing.T) {
	src := strings.Join([]string{
		"class Timer",
		"  def initialize(app)",
		"    @app = app",
		"    @count = 0",
		"  end",
		"",
		"  def call(env)",
		"    @count += 1",
		"    @app.call(env)",
		"  end",
		"end",
		"",
	}, "\n")
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	diags := res.Report.Diagnostics
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, rules.RackMiddlewareInstanceVariableID, d.RuleID)
		assert.Equal(t, "Avoid instance variables in Rack middleware.", d.Message)
	}
	assert.Equal(t, "@count = 0", text(src, diags[0].Range))
	assert.Equal(t, "@count", text(src, diags[1].Range))
}

func TestAnalyzeSource_Directives(t *testing.T) {
	src := strings.Join([]string{
		"Thread.new { } # threadguard:disable new-thread",
		"# threadguard:disable all",
		"Thread.fork { }",
		"Thread.start { }",
		"",
	}, "\n")
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	require.Len(t, res.Report.Diagnostics, 1)
	assert.Equal(t, "Thread.start", text(src, res.Report.Diagnostics[0].Range))
}

func TestAnalyzeSource_RubocopDisableRegion(t *testing.T) {
	src := strings.Join([]string{
		"# rubocop:disable ThreadSafety/NewThread",
		"Thread.new {}",
		"Thread.new {}",
		"# rubocop:enable ThreadSafety/NewThread",
		"Thread.start {}",
		"",
	}, "\n")
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	require.Len(t, res.Report.Diagnostics, 1)
	assert.Equal(t, "Thread.start", text(src, res.Report.Diagnostics[0].Range))
}

func TestAnalyzeSource_SyntaxErrors(t *testing.T) {
	src := "Thread.new { }\ndef broken(\n"
	res := analyze(t, newEngine(t, rules.DefaultConfig()), src)

	assert.NotEmpty(t, res.SyntaxErrors)
	assert.NotNil(t, res.Report)
}

func TestAnalyzeSource_ParseFailure(t *testing.T) {
	eng := newEngine(t, rules.DefaultConfig(), WithParser(ruby.NewParser(ruby.WithMaxFileSize(8))))

	_, err := eng.AnalyzeSource(context.Background(), Source{Path: "big.rb", Content: []byte("Thread.new { work }\n")})
	assert.ErrorIs(t, err, ruby.ErrFileTooLarge)

	var unitErr *UnitError
	require.True(t, errors.As(err, &unitErr))
	assert.Equal(t, "big.rb", unitErr.Path)
}

func TestAnalyzeSources(t *testing.T) {
	srcs := []Source{
		{Path: "a.rb", Content: []byte("Thread.new { }\n")},
		{Path: "bad.rb", Content: []byte{0xff, 0xfe}},
		{Path: "c.rb", Content: []byte("x = 1\n")},
	}

	eng := newEngine(t, rules.DefaultConfig())
	results, err := eng.AnalyzeSources(context.Background(), srcs)

	assert.ErrorIs(t, err, ruby.ErrInvalidContent)
	require.Len(t, results, 3)
	require.NotNil(t, results[0])
	assert.Nil(t, results[1])
	require.NotNil(t, results[2])

	assert.Len(t, results[0].Report.Diagnostics, 1)
	assert.Empty(t, results[2].Report.Diagnostics)
	assert.Equal(t, results[0].Report.RunID, results[2].Report.RunID)
}
