// SPDX-License-Identifier: MPL-2.0

// Package descriptor decodes the binary descriptors found in Android firmware:
// exported classpath fragments (etc/classpaths/*.pb) and updatable module
// manifests (apex_manifest.pb).
//
// Both formats are protocol buffers. Decoding works directly on the wire format
// via protowire so no generated code is needed; unknown fields are skipped so
// newer platform releases that append fields keep decoding.
package descriptor
