// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the romextract CLI.
//
// This package implements the Cobra command hierarchy: the remote and image
// extraction commands and configuration management. Extraction commands wire
// a firmware source into the extract pipeline and render its report.
package cmd
