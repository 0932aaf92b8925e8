// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ruby

// locals is one local-variable scope. Ruby decides at parse time whether
// a bare identifier is a variable or a method call: it is a variable only
// if a parameter or an assignment earlier in the enclosing scope bound it.
//
// def, class, module and the program start a fresh scope. Blocks and
// lambdas see the names of their enclosing scope, but names they bind
// stay inside.
type locals struct {
	names  map[string]struct{}
	parent *locals
}

func newLocals(parent *locals) *locals {
	return &locals{names: make(map[string]struct{}), parent: parent}
}

func (l *locals) declare(name string) {
	if name != "" {
		l.names[name] = struct{}{}
	}
}

func (l *locals) has(name string) bool {
	for s := l; s != nil; s = s.parent {
		if _, ok := s.names[name]; ok {
			return true
		}
	}
	return false
}
