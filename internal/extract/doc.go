// SPDX-License-Identifier: MPL-2.0

// Package extract runs one firmware extraction: build identity, SELinux
// policies, base classpath fragments, module discovery and resolution,
// classpath assembly and materialization.
//
// Module and entry failures are recorded in the [Report] and never stop the
// run. The only aborting condition is a missing runtime module, reported
// after identity and policy artifacts are already on disk.
package extract
