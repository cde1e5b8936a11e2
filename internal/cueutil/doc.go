// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema.
//
// The flow is the same for every caller: compile the schema, compile the user
// document, unify it with a root definition and validate the result. Errors
// carry the file name and a JSON-style path to the offending field:
//
//	config.cue: log.level: 2 errors in empty disjunction
package cueutil
