// Package errors is the error toolkit for talentgraph.
//
// It re-exports github.com/cockroachdb/errors for creation, wrapping and
// inspection, and layers a small code taxonomy on top so every failure can be
// persisted uniformly into an error_json column:
//
//	not_found             referenced subject/document/claim missing
//	validation            required input field absent or malformed
//	external_provider     AI, scrape or search failure
//	conflict              unique-constraint race on an idempotent upsert
//	partial_batch_failure one or more batch items failed
//	timeout               bounded wait exhausted
//	internal              anything else
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
)

// Details and hints
var (
	WithHint    = crdb.WithHint
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllDetails = crdb.GetAllDetails
)
