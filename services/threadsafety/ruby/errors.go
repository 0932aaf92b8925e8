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

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// Sentinel errors for parse failures that produce no tree at all.
var (
	// ErrInvalidContent indicates content that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content larger than the configured limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrParseFailed indicates tree-sitter returned no tree.
	ErrParseFailed = errors.New("parse failed")
)

// SyntaxError is a region tree-sitter could not parse. The tree around it
// is still produced; the region itself becomes a KindOther node.
type SyntaxError struct {
	// Path is the source path given to Parse.
	Path string

	// Range is the byte span of the error.
	Range tree.Range

	// Line is the 1-indexed line of Range.Start.
	Line int

	// Missing is true when the parser inserted a missing token rather
	// than skipping unparseable input.
	Missing bool

	// Token is the node type tree-sitter reported.
	Token string
}

// Error implements error.
func (e *SyntaxError) Error() string {
	what := "unexpected input"
	if e.Missing {
		what = "missing " + e.Token
	}
	if e.Path == "" {
		return fmt.Sprintf("%d: syntax error: %s", e.Line, what)
	}
	return fmt.Sprintf("%s:%d: syntax error: %s", e.Path, e.Line, what)
}
