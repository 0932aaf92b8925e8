// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"github.com/AleutianAI/threadguard/services/threadsafety/pattern"
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/scope"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

const classInstanceVariableMessage = "Avoid class instance variables."

var (
	// instance_variable_get(name), implicit self only
	ivarGet = pattern.Call("instance_variable_get").Recv(pattern.None()).Args(pattern.Any())

	// instance_variable_set(name, value), implicit self only
	ivarSet = pattern.Call("instance_variable_set").Recv(pattern.None()).Args(pattern.Any(), pattern.Any())

	dynamicIvarAccess = pattern.Or(ivarGet, ivarSet)
)

// ClassInstanceVariable flags instance variables of a class or module
// object. They are shared by every thread using the class.
//
//	# bad
//	class Test
//	  def self.some_method(params)
//	    @params = params
//	  end
//	end
//
// Accesses inside a block passed to a `synchronize` call are assumed to
// be guarded and are not reported.
type ClassInstanceVariable struct{}

// ID implements Rule.
func (ClassInstanceVariable) ID() string { return ClassInstanceVariableID }

// Description implements Rule.
func (ClassInstanceVariable) Description() string { return "Avoid class instance variables." }

// Check implements Rule.
//
// Description:
//
//	Reports ivar reads and writes, and receiverless instance_variable_get
//	and instance_variable_set calls, that execute in ClassScope. A write
//	is anchored on the variable name; a dynamic access on the whole call.
func (r ClassInstanceVariable) Check(p *Pass) ([]report.Diagnostic, error) {
	scopes, err := p.scopeMap()
	if err != nil {
		return nil, err
	}

	var out []report.Diagnostic
	err = tree.WalkStack(p.Root, func(n *tree.Node, ancestors []*tree.Node) bool {
		var anchor tree.Range
		switch {
		case n.Kind() == tree.KindIvar, n.Kind() == tree.KindIvasgn:
			anchor = n.HeadRange()
		case pattern.Matches(dynamicIvarAccess, n):
			anchor = n.HeadRange()
		default:
			return true
		}
		if scopes.Scope(n) != scope.ClassScope || synchronized(ancestors) {
			return true
		}
		out = append(out, diagnostic(r.ID(), classInstanceVariableMessage, anchor))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
