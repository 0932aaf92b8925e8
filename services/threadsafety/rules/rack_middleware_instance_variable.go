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
	"strings"

	"github.com/AleutianAI/threadguard/services/threadsafety/pattern"
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/scope"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

const rackMiddlewareMessage = "Avoid instance variables in Rack middleware."

// instance_variable_get(:@name) / instance_variable_set("@name", v)
var namedIvarAccess = pattern.Call("instance_variable_get", "instance_variable_set").
	Recv(pattern.None()).
	Args(pattern.Kind(tree.KindSym, tree.KindStr, tree.KindDSym, tree.KindDStr).Capture("name"), pattern.Rest())

// RackMiddlewareInstanceVariable flags instance state in Rack-style
// middleware. A middleware object is built once and then serves every
// request concurrently, so only the wrapped application may live in an
// instance variable.
//
//	# bad
//	class TestMiddleware
//	  def initialize(app)
//	    @app = app
//	    @counter = 0
//	  end
//
//	  def call(env)
//	    @counter += 1
//	    @app.call(env)
//	  end
//	end
type RackMiddlewareInstanceVariable struct {
	// AllowedIdentifiers exempts variables whose name, without `@`,
	// contains any of these substrings.
	AllowedIdentifiers []string
}

// ID implements Rule.
func (RackMiddlewareInstanceVariable) ID() string { return RackMiddlewareInstanceVariableID }

// Description implements Rule.
func (RackMiddlewareInstanceVariable) Description() string {
	return "Avoid instance variables in Rack middleware."
}

// Check implements Rule.
//
// Description:
//
//	For every wrapper class found by the scope resolver, reports each
//	ivar read or write inside any of its method definitions, and each
//	receiverless instance_variable_get/set naming a variable by symbol or
//	string. The wrapped application field, fields holding Concurrent::*
//	objects and allowed identifiers are exempt. Nested classes are judged
//	on their own.
func (r RackMiddlewareInstanceVariable) Check(p *Pass) ([]report.Diagnostic, error) {
	scopes, err := p.scopeMap()
	if err != nil {
		return nil, err
	}
	if len(scopes.Wrappers()) == 0 {
		return nil, nil
	}

	var out []report.Diagnostic
	err = tree.WalkStack(p.Root, func(n *tree.Node, ancestors []*tree.Node) bool {
		w := enclosingWrapper(scopes, ancestors)
		if w == nil {
			return true
		}

		var name string
		var anchor tree.Range
		switch n.Kind() {
		case tree.KindIvar, tree.KindIvasgn:
			name, anchor = n.Value(), n.Range()
		case tree.KindCall:
			res, ok := pattern.Match(namedIvarAccess, n)
			if !ok {
				return true
			}
			name, anchor = res.Get("name").Value(), n.HeadRange()
			if name != "" && !strings.HasPrefix(name, "@") {
				name = "@" + name
			}
		default:
			return true
		}

		if w.Exempt(name) || r.allowed(name) {
			return true
		}
		out = append(out, diagnostic(r.ID(), rackMiddlewareMessage, anchor))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// enclosingWrapper returns the wrapper owning the node when the node sits
// inside a method definition of the nearest enclosing class.
func enclosingWrapper(scopes *scope.Map, ancestors []*tree.Node) *scope.Wrapper {
	inDef := false
	for i := len(ancestors) - 1; i >= 0; i-- {
		switch ancestors[i].Kind() {
		case tree.KindDef:
			inDef = true
		case tree.KindClass:
			if !inDef {
				return nil
			}
			return scopes.Wrapper(ancestors[i])
		}
	}
	return nil
}

func (r RackMiddlewareInstanceVariable) allowed(name string) bool {
	bare := strings.TrimPrefix(name, "@")
	for _, id := range r.AllowedIdentifiers {
		if id != "" && strings.Contains(bare, id) {
			return true
		}
	}
	return false
}
