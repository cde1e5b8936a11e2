// SPDX-License-Identifier: MPL-2.0

// Package apex resolves updatable module packages into unpacked payload trees.
//
// A [Package] moves through a fixed lifecycle:
//
//	Discovered -> ManifestRead -> PayloadResolved -> Unpacked -> ClasspathParsed -> Runtime | Other
//
// and may fail from any non-terminal state. A failed package is a normal
// outcome carrying a [Reason]; it never aborts processing of its siblings.
package apex
