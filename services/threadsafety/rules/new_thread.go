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
	"fmt"

	"github.com/AleutianAI/threadguard/services/threadsafety/pattern"
	"github.com/AleutianAI/threadguard/services/threadsafety/report"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Thread.new / ::Thread.fork / Thread&.start, any arguments or block
var threadStart = pattern.Call("new", "fork", "start").Recv(pattern.TopConst("Thread"))

// NewThread flags calls that start an unmanaged thread.
//
//	# bad
//	Thread.new { do_work }
type NewThread struct{}

// ID implements Rule.
func (NewThread) ID() string { return NewThreadID }

// Description implements Rule.
func (NewThread) Description() string { return "Avoid starting new threads." }

// Check implements Rule. The diagnostic covers the call without its block.
func (r NewThread) Check(p *Pass) ([]report.Diagnostic, error) {
	var out []report.Diagnostic
	err := tree.Walk(p.Root, func(n *tree.Node) bool {
		if pattern.Matches(threadStart, n) {
			msg := fmt.Sprintf("Avoid starting new threads with `Thread.%s`.", n.Value())
			out = append(out, diagnostic(r.ID(), msg, n.HeadRange()))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
