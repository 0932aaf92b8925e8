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
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/threadguard/pkg/validation"
	"github.com/AleutianAI/threadguard/services/threadsafety/scope"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid rule configuration")

// RuleConfig holds the options every rule shares.
type RuleConfig struct {
	// Enabled turns the rule on.
	Enabled bool `json:"enabled"`

	// Exclude lists doublestar globs (e.g. "spec/**/*.rb") of source paths
	// the rule skips.
	Exclude []string `json:"exclude,omitempty" validate:"dive,required,glob"`
}

// DirChdirConfig configures DirChdir.
type DirChdirConfig struct {
	RuleConfig

	// AllowCallWithBlock exempts calls that pass a block.
	AllowCallWithBlock bool `json:"allow_call_with_block"`
}

// RackMiddlewareConfig configures RackMiddlewareInstanceVariable.
type RackMiddlewareConfig struct {
	RuleConfig

	// AllowedIdentifiers are variable-name substrings, without `@`, that
	// are never reported.
	AllowedIdentifiers []string `json:"allowed_identifiers,omitempty" validate:"dive,required,ident_fragment"`
}

// Config is the static configuration of a rule set.
//
// Thread Safety: Treat as immutable after Build.
type Config struct {
	NewThread                      RuleConfig           `json:"new_thread"`
	DirChdir                       DirChdirConfig       `json:"dir_chdir"`
	ClassInstanceVariable          RuleConfig           `json:"class_instance_variable"`
	RackMiddlewareInstanceVariable RackMiddlewareConfig `json:"rack_middleware_instance_variable"`

	// LifecycleCallbacks overrides scope.DefaultLifecycleCallbacks when
	// non-nil.
	LifecycleCallbacks []string `json:"lifecycle_callbacks,omitempty" validate:"omitempty,dive,required,method_name"`
}

// DefaultConfig returns every rule enabled with default options.
func DefaultConfig() Config {
	return Config{
		NewThread:                      RuleConfig{Enabled: true},
		DirChdir:                       DirChdirConfig{RuleConfig: RuleConfig{Enabled: true}},
		ClassInstanceVariable:          RuleConfig{Enabled: true},
		RackMiddlewareInstanceVariable: RackMiddlewareConfig{RuleConfig: RuleConfig{Enabled: true}},
	}
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("glob", validateGlob)
	_ = configValidate.RegisterValidation("method_name", func(fl validator.FieldLevel) bool {
		return validation.ValidateMethodName(fl.Field().String()) == nil
	})
	_ = configValidate.RegisterValidation("ident_fragment", func(fl validator.FieldLevel) bool {
		return validation.ValidateIdentifierFragment(fl.Field().String()) == nil
	})
}

// validateGlob accepts strings doublestar can compile as a pattern.
func validateGlob(fl validator.FieldLevel) bool {
	return doublestar.ValidatePattern(fl.Field().String())
}

// Validate checks the configuration.
//
// Outputs:
//
//	error - Nil, or an error wrapping ErrInvalidConfig that describes the
//	        offending fields.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ScopeOptions returns the scope.Options implied by the configuration.
func (c Config) ScopeOptions() scope.Options {
	return scope.Options{LifecycleCallbacks: c.LifecycleCallbacks}
}

// For returns the shared options of the rule with the given ID.
func (c Config) For(ruleID string) (RuleConfig, bool) {
	switch ruleID {
	case NewThreadID:
		return c.NewThread, true
	case DirChdirID:
		return c.DirChdir.RuleConfig, true
	case ClassInstanceVariableID:
		return c.ClassInstanceVariable, true
	case RackMiddlewareInstanceVariableID:
		return c.RackMiddlewareInstanceVariable.RuleConfig, true
	default:
		return RuleConfig{}, false
	}
}

// Excluded reports whether path matches one of the rule's Exclude globs.
// An empty path is never excluded. Patterns must have passed Validate.
func (rc RuleConfig) Excluded(path string) bool {
	if path == "" {
		return false
	}
	slashed := filepath.ToSlash(path)
	for _, pattern := range rc.Exclude {
		if ok, err := doublestar.Match(pattern, slashed); err == nil && ok {
			return true
		}
	}
	return false
}

// =============================================================================
// RULE SET
// =============================================================================

// Build validates cfg and returns the enabled rules in a fixed order:
// new-thread, dir-chdir, class-instance-variable,
// rack-middleware-instance-variable.
func Build(cfg Config) ([]Rule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var out []Rule
	if cfg.NewThread.Enabled {
		out = append(out, NewThread{})
	}
	if cfg.DirChdir.Enabled {
		out = append(out, DirChdir{AllowCallWithBlock: cfg.DirChdir.AllowCallWithBlock})
	}
	if cfg.ClassInstanceVariable.Enabled {
		out = append(out, ClassInstanceVariable{})
	}
	if cfg.RackMiddlewareInstanceVariable.Enabled {
		allowed := append([]string(nil), cfg.RackMiddlewareInstanceVariable.AllowedIdentifiers...)
		out = append(out, RackMiddlewareInstanceVariable{AllowedIdentifiers: allowed})
	}
	return out, nil
}
