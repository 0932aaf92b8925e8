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

var workingDirChange = pattern.Or(
	pattern.Call("chdir").Recv(pattern.TopConst("Dir").Capture("recv")),
	pattern.Call("chdir", "cd").Recv(pattern.TopConst("FileUtils").Capture("recv")),
)

// DirChdir flags changes of the process working directory, which every
// thread observes.
//
//	# bad
//	Dir.chdir("/var/run")
//	FileUtils.cd("/var/run")
type DirChdir struct {
	// AllowCallWithBlock exempts calls given a block or `&blk`. Some
	// runtimes restore the directory when the block returns.
	AllowCallWithBlock bool
}

// ID implements Rule.
func (DirChdir) ID() string { return DirChdirID }

// Description implements Rule.
func (DirChdir) Description() string {
	return "Avoid using `Dir.chdir` due to its process-wide effect."
}

// Check implements Rule.
func (r DirChdir) Check(p *Pass) ([]report.Diagnostic, error) {
	var out []report.Diagnostic
	err := tree.Walk(p.Root, func(n *tree.Node) bool {
		res, ok := pattern.Match(workingDirChange, n)
		if !ok || (r.AllowCallWithBlock && n.HasBlock()) {
			return true
		}
		op := "."
		if n.SafeNav() {
			op = "&."
		}
		msg := fmt.Sprintf("Avoid using `%s%s%s` due to its process-wide effect.", res.Get("recv").Value(), op, n.Value())
		out = append(out, diagnostic(r.ID(), msg, n.HeadRange()))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
