// SPDX-License-Identifier: MPL-2.0

// Package classpath reconstructs a firmware build's boot and system server
// classpaths.
//
// The base system partition and every updatable module each declare ordered
// classpath fragments. An [Assembly] collects them and [Assembly.Finalize]
// merges them per [Kind] as
//
//	runtime module ++ base partition ++ other modules (discovery order)
//
// Order inside a fragment is load order and is never changed; repeated paths
// are kept. A [Materializer] then copies every listed archive into a local
// tree, sourcing module-scoped entries (/apex/<module>/...) from the module's
// unpack directory and partition-scoped entries from a blob source.
package classpath
