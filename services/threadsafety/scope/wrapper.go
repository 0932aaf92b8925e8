// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scope

import (
	"github.com/AleutianAI/threadguard/services/threadsafety/pattern"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Wrapper describes a class shaped like a Rack middleware: one instance
// serves every request, so any field besides the wrapped dependency is
// shared mutable state.
type Wrapper struct {
	// Class is the class node.
	Class *tree.Node

	// Constructor is the `initialize` definition.
	Constructor *tree.Node

	// Call is the `call` definition.
	Call *tree.Node

	// Param is the name of the constructor's first positional parameter.
	Param string

	// Field is the instance variable (with `@`) the constructor assigns
	// Param to unchanged.
	Field string

	// SafeFields are fields the constructor initializes with a
	// `Concurrent::*` object.
	SafeFields []string
}

// Exempt reports whether accesses to field (with `@`) are never reported:
// the tracked dependency itself, or a thread-safe container.
func (w *Wrapper) Exempt(field string) bool {
	if field == w.Field {
		return true
	}
	for _, f := range w.SafeFields {
		if f == field {
			return true
		}
	}
	return false
}

var (
	// def initialize(app, ...)
	constructorPattern = pattern.Kind(tree.KindDef).Value("initialize").Children(
		pattern.Kind(tree.KindParams).Children(pattern.Kind(tree.KindArg).Capture("param"), pattern.Rest()),
		pattern.Rest(),
	)

	// def initialize(app, ...); ...; @app = app; ...; end
	trackedPattern = pattern.Kind(tree.KindDef).Value("initialize").Children(
		pattern.Kind(tree.KindParams).Children(pattern.Kind(tree.KindArg).Capture("param"), pattern.Rest()),
		pattern.Rest(),
		pattern.Kind(tree.KindIvasgn).Capture("field").Children(pattern.Ref("param").OfKind(tree.KindLvar)),
		pattern.Rest(),
	)

	// def call(env)
	callPattern = pattern.Kind(tree.KindDef).Value("call").Children(
		pattern.Kind(tree.KindParams).Children(pattern.Kind(tree.KindArg)),
		pattern.Rest(),
	)

	// @field = Concurrent::Map.new(...)
	safeFieldPattern = pattern.Kind(tree.KindIvasgn).Children(
		pattern.Call("new").Recv(pattern.Kind(tree.KindConst).Recv(pattern.TopConst("Concurrent"))),
	)
)

// detectWrapper returns the wrapper record for class, or nil.
//
// A wrapper is `class Name` with an unscoped name and no superclass whose
// body defines `initialize` with a required first positional parameter
// and `call` with exactly one parameter. A top-level statement of the
// constructor must assign the parameter unchanged to a field; without
// such an assignment there is no wrapped dependency to distinguish and nil
// is returned.
func detectWrapper(class *tree.Node) *Wrapper {
	name := class.Name()
	if name == nil || name.Kind() != tree.KindConst || name.Receiver() != nil || class.Superclass() != nil {
		return nil
	}

	w := &Wrapper{Class: class}
	for _, stmt := range class.Body() {
		if w.Constructor == nil {
			if res, ok := pattern.Match(constructorPattern, stmt); ok {
				w.Constructor = stmt
				w.Param = res.Get("param").Value()
				continue
			}
		}
		if w.Call == nil && pattern.Matches(callPattern, stmt) {
			w.Call = stmt
		}
	}
	if w.Constructor == nil || w.Call == nil {
		return nil
	}

	res, ok := pattern.Match(trackedPattern, w.Constructor)
	if !ok {
		return nil
	}
	w.Field = res.Get("field").Value()

	assigns, err := tree.Find(w.Constructor, tree.KindIvasgn)
	if err != nil {
		return nil
	}
	for _, asgn := range assigns {
		if pattern.Matches(safeFieldPattern, asgn) {
			w.SafeFields = append(w.SafeFields, asgn.Value())
		}
	}
	return w
}
