// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"log/slog"

	"github.com/canonical/twoway/dialect"
	"github.com/canonical/twoway/types"
)

type options struct {
	logger        *slog.Logger
	dialect       dialect.Dialect
	functions     types.Functions
	checkEmbedded func(string) error
}

// Option configures a [DB] or a [Repository].
type Option func(*options)

// WithLogger sets the logger. Executed statements are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialect sets the dialect used to build templates on a [DB].
func WithDialect(d dialect.Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithFunctions adds functions available to template expressions on a [DB].
func WithFunctions(fs types.Functions) Option {
	return func(o *options) {
		o.functions = fs
	}
}

// WithEmbeddedCheck replaces [CheckEmbedded] on a [DB].
func WithEmbeddedCheck(check func(text string) error) Option {
	return func(o *options) {
		o.checkEmbedded = check
	}
}

func newOptions(opts []Option) options {
	o := options{dialect: dialect.Standard}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
