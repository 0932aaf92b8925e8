// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrNoTree indicates a Unit without a Root.
	ErrNoTree = errors.New("unit has no tree")

	// ErrInvalidRule indicates an extra rule whose ID is malformed or
	// already taken.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRulePanic indicates a rule panicked. It is recorded as that
	// rule's failure on the unit; other rules still run.
	ErrRulePanic = errors.New("rule panicked")
)

// UnitError reports a source unit that produced no report at all.
type UnitError struct {
	// Path names the unit. May be empty.
	Path string

	// Err is the cause: a parse error, ErrNoTree, a malformed tree, or a
	// context error.
	Err error
}

// Error implements error.
func (e *UnitError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("evaluating unit: %v", e.Err)
	}
	return fmt.Sprintf("evaluating %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnitError) Unwrap() error {
	return e.Err
}
