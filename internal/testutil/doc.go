// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Helpers cover environment variables (MustSetenv, SetHomeDir), directory
// setup (MustMkdirAll, MustWriteFile) and container throttling
// (ContainerSemaphore). Firmware fixtures live in the fwtest subpackage.
package testutil
