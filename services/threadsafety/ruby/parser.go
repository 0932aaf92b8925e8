// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ruby adapts tree-sitter's Ruby grammar to the tree model.
//
// Description:
//
//	tree-sitter produces a concrete syntax tree with punctuation, comments
//	and grammar-specific wrapper nodes. The rules want an abstract tree in
//	which a call has a receiver, arguments and block, an assignment names
//	its target, and a bare identifier is either a local variable or a
//	method call depending on what was bound before it. Parser does that
//	conversion.
//
// Thread Safety:
//
//	Parser is safe for concurrent use. Each Parse call creates its own
//	tree-sitter parser instance.
package ruby

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	tsruby "github.com/smacker/go-tree-sitter/ruby"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// ParserOptions configures Parser behavior.
type ParserOptions struct {
	// MaxFileSize is the maximum content size in bytes.
	// Larger content returns ErrFileTooLarge.
	// Default: 10MB
	MaxFileSize int
}

// DefaultParserOptions returns the default options.
func DefaultParserOptions() ParserOptions {
	return ParserOptions{
		MaxFileSize: 10 * 1024 * 1024,
	}
}

// ParserOption is a functional option for configuring Parser.
type ParserOption func(*ParserOptions)

// WithMaxFileSize sets the maximum content size for parsing.
func WithMaxFileSize(size int) ParserOption {
	return func(o *ParserOptions) {
		o.MaxFileSize = size
	}
}

// Parser converts Ruby source into a *tree.Node.
//
// Example:
//
//	p := ruby.NewParser()
//	res, err := p.Parse(ctx, src, "app/middleware/timer.rb")
//	if err != nil {
//	    return fmt.Errorf("parse: %w", err)
//	}
//	for _, se := range res.Errors {
//	    logger.Warn("syntax error", slog.String("error", se.Error()))
//	}
type Parser struct {
	options ParserOptions
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...ParserOption) *Parser {
	options := DefaultParserOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Parser{options: options}
}

// ParseResult is the outcome of parsing one source unit.
type ParseResult struct {
	// Path is the source path given to Parse.
	Path string

	// Root is the converted tree, of kind KindProgram.
	Root *tree.Node

	// Errors lists syntax error regions. Root is still usable; the regions
	// themselves are KindOther nodes.
	Errors []*SyntaxError

	// Comments holds the byte span of every comment, in source order.
	Comments []tree.Range

	// NodeCount is the number of nodes in Root.
	NodeCount int
}

// Parse parses content and converts the result.
//
// Description:
//
//	The content is parsed with tree-sitter's Ruby grammar and converted
//	into the tree model. Syntax errors do not fail the parse: they are
//	reported in ParseResult.Errors alongside a best-effort tree.
//
// Inputs:
//
//	ctx     - Context for cancellation. Checked before and after parsing.
//	content - Ruby source. Must be valid UTF-8.
//	path    - Source path for error messages. May be empty.
//
// Outputs:
//
//	*ParseResult - Never nil when err is nil.
//	error        - ErrFileTooLarge, ErrInvalidContent, ErrParseFailed, or a
//	               context error.
func (p *Parser) Parse(ctx context.Context, content []byte, path string) (*ParseResult, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, path, len(content))
	defer span.End()

	result, err := p.parse(ctx, content, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, err
	}

	setParseSpanResult(span, result.NodeCount, len(result.Errors))
	recordParseMetrics(ctx, time.Since(start), result.NodeCount, len(result.Errors), true)
	return result, nil
}

func (p *Parser) parse(ctx context.Context, content []byte, path string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ruby parse canceled before start: %w", err)
	}
	if len(content) > p.options.MaxFileSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, len(content), ErrFileTooLarge)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(tsruby.GetLanguage())

	cst, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if cst == nil {
		return nil, ErrParseFailed
	}
	defer cst.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ruby parse canceled after tree-sitter: %w", err)
	}

	c := newConverter(content, path)
	root := c.program(cst.RootNode())

	return &ParseResult{
		Path:      path,
		Root:      root,
		Errors:    c.errors,
		Comments:  c.comments,
		NodeCount: c.count,
	}, nil
}
