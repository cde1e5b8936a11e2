// SPDX-License-Identifier: MPL-2.0

// Package archive lists and extracts entries of ZIP-like containers and
// decompresses filesystem images.
//
// Containers (module packages and their nested capsules) are handled in memory
// with a ZIP reader. Filesystem images (ext4/erofs payloads, system partition
// images) are delegated to the 7z tool, which is the only widely available
// reader that understands all of the image formats shipped in firmware.
package archive
