// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements the thread-safety checks.
//
// Description:
//
//	Each Rule is a small configuration of pattern matching and scope
//	classification over one source tree. Rules hold only static
//	configuration: Check is a pure function of its Pass, and the same
//	Pass always yields the same diagnostics in the same order (source
//	pre-order).
//
// Thread Safety:
//
//	Rules are safe for concurrent use on different Passes.
package rules

import (
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/scope"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Rule identifiers.
const (
	NewThreadID                      = "new-thread"
	DirChdirID                       = "dir-chdir"
	ClassInstanceVariableID          = "class-instance-variable"
	RackMiddlewareInstanceVariableID = "rack-middleware-instance-variable"
)

// Rule is one named thread-safety check.
type Rule interface {
	// ID returns the stable identifier used in diagnostics and config.
	ID() string

	// Description returns a one-line human description.
	Description() string

	// Check evaluates the rule against one tree.
	//
	// Outputs:
	//
	//	[]report.Diagnostic - Findings in source pre-order. Nil when clean.
	//	error               - Non-nil only for a malformed tree.
	Check(p *Pass) ([]report.Diagnostic, error)
}

// Pass is the input to Rule.Check.
type Pass struct {
	// Root is the source unit's tree.
	Root *tree.Node

	// Scopes is the scope classification of Root. Rules that need it
	// resolve one with default options when it is nil.
	Scopes *scope.Map
}

// scopeMap returns p.Scopes, resolving it with default options when the
// caller did not provide one.
func (p *Pass) scopeMap() (*scope.Map, error) {
	if p.Scopes != nil {
		return p.Scopes, nil
	}
	return scope.NewResolver(scope.Options{}).Resolve(p.Root)
}

func diagnostic(ruleID, message string, anchor tree.Range) report.Diagnostic {
	return report.Diagnostic{RuleID: ruleID, Message: message, Range: anchor}
}

// synchronized reports whether any ancestor is a block attached to a
// call named `synchronize`. The receiver is not inspected.
func synchronized(ancestors []*tree.Node) bool {
	for i := len(ancestors) - 1; i > 0; i-- {
		if ancestors[i].Kind() != tree.KindBlock {
			continue
		}
		call := ancestors[i-1]
		if call.Block() == ancestors[i] && call.IsCall("synchronize") {
			return true
		}
	}
	return false
}
