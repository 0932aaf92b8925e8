// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report collects the diagnostics rules produce for one source unit.
//
// Description:
//
//	The Reporter is an in-memory boundary between rules and whoever
//	consumes their findings. It does no formatting and no I/O. Diagnostics
//	are kept in rule-invocation order, and within one rule in the order
//	the rule produced them.
package report

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Diagnostic is one reported hazard.
type Diagnostic struct {
	RuleID  string     `json:"rule_id"`
	Message string     `json:"message"`
	Range   tree.Range `json:"range"`
}

// String formats the diagnostic as "start:end rule-id: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Range, d.RuleID, d.Message)
}

// RuleError records a rule that failed on a source unit. Its diagnostics
// are discarded; other rules are unaffected.
type RuleError struct {
	RuleID string
	Err    error
}

// Error implements error.
func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Report is the result of evaluating one source unit.
type Report struct {
	// RunID identifies the evaluation run. Units evaluated together share it.
	RunID string `json:"run_id"`

	// Path names the source unit. May be empty.
	Path string `json:"path,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics"`

	// Errors holds per-rule failures. A unit with errors is partially analyzed.
	Errors []*RuleError `json:"-"`
}

// Err joins the rule failures, or returns nil when every rule succeeded.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Reporter accumulates diagnostics for one source unit.
//
// Thread Safety:
//
//	Not safe for concurrent use. Each unit gets its own Reporter.
type Reporter struct {
	diags []Diagnostic
	errs  []*RuleError
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Add appends the diagnostics of one rule invocation. Entries with an
// empty RuleID are stamped with ruleID.
func (r *Reporter) Add(ruleID string, diags []Diagnostic) {
	for _, d := range diags {
		if d.RuleID == "" {
			d.RuleID = ruleID
		}
		r.diags = append(r.diags, d)
	}
}

// Fail records that ruleID could not complete.
func (r *Reporter) Fail(ruleID string, err error) {
	r.errs = append(r.errs, &RuleError{RuleID: ruleID, Err: err})
}

// Diagnostics returns a copy of everything added so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Errors returns a copy of the recorded rule failures.
func (r *Reporter) Errors() []*RuleError {
	out := make([]*RuleError, len(r.errs))
	copy(out, r.errs)
	return out
}

// Filter drops every diagnostic for which keep returns false.
func (r *Reporter) Filter(keep func(Diagnostic) bool) {
	kept := r.diags[:0]
	for _, d := range r.diags {
		if keep(d) {
			kept = append(kept, d)
		}
	}
	r.diags = kept
}

// Report snapshots the Reporter into a Report.
func (r *Reporter) Report(runID, path string) *Report {
	return &Report{
		RunID:       runID,
		Path:        path,
		Diagnostics: r.Diagnostics(),
		Errors:      r.Errors(),
	}
}
