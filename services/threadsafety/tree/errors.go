// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"errors"
	"fmt"
)

// ErrMalformedTree is the sentinel matched by every MalformedTreeError.
//
// Example:
//
//	if errors.Is(err, tree.ErrMalformedTree) {
//	    // abort analysis of this unit
//	}
var ErrMalformedTree = errors.New("malformed tree")

// MalformedTreeError reports a structural invariant violation found while
// traversing a tree: a nil child, a node reachable from two parents, or a
// call whose slots disagree with its kind.
//
// It is not recoverable locally; analysis of the affected tree aborts.
type MalformedTreeError struct {
	// Parent is the node whose children are inconsistent. Nil for a nil root.
	Parent *Node

	// Index is the position of the offending child in Parent.Children(), or -1.
	Index int

	// Reason describes the violation.
	Reason string
}

// Error implements error.
func (e *MalformedTreeError) Error() string {
	if e.Parent == nil {
		return fmt.Sprintf("malformed tree: %s", e.Reason)
	}
	return fmt.Sprintf("malformed tree: %s node at %s, child %d: %s",
		e.Parent.Kind(), e.Parent.Range(), e.Index, e.Reason)
}

// Is matches ErrMalformedTree.
func (e *MalformedTreeError) Is(target error) bool {
	return target == ErrMalformedTree
}
