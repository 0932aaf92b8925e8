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
	"log/slog"
	"runtime"

	"github.com/AleutianAI/threadguard/services/threadsafety/ruby"
	"github.com/AleutianAI/threadguard/services/threadsafety/rules"
)

// Options configures Engine behavior.
type Options struct {
	// Logger receives per-unit and per-rule events.
	// Default: a logger that discards everything.
	Logger *slog.Logger

	// Concurrency bounds how many units EvaluateAll and AnalyzeSources
	// process at once.
	// Default: runtime.GOMAXPROCS(0)
	Concurrency int

	// Parser turns source into trees for AnalyzeSource.
	// Default: ruby.NewParser()
	Parser *ruby.Parser

	// ExtraRules run after the configured rules. They are not subject
	// to per-rule configuration.
	ExtraRules []rules.Rule
}

// Option is a functional option for configuring Engine.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithConcurrency sets the number of units evaluated in parallel.
// Values below 1 select the default.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithParser sets the parser used by AnalyzeSource.
func WithParser(p *ruby.Parser) Option {
	return func(o *Options) {
		o.Parser = p
	}
}

// WithExtraRules adds rules beyond those built from the configuration.
func WithExtraRules(rs ...rules.Rule) Option {
	return func(o *Options) {
		o.ExtraRules = append(o.ExtraRules, rs...)
	}
}

func (o *Options) applyDefaults() {
	if o.Concurrency < 1 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.Parser == nil {
		o.Parser = ruby.NewParser()
	}
}
