// SPDX-License-Identifier: MPL-2.0

// Package fwtest builds firmware fixtures for tests: protobuf classpath
// descriptors, module manifests, module package containers (direct payload or
// legacy capsule), and a payload image extractor that needs no external tools.
//
// Payload "images" produced here are ZIP containers; ZipImageExtractor unpacks
// them where production code would run 7z over a filesystem image.
package fwtest
