// SPDX-License-Identifier: MPL-2.0

// Package remote fetches firmware from a GitLab-hosted partition dump.
//
// Files are served raw from
//
//	{base}/dumps/{oem}/{product}/-/raw/{branch}/{path}
//
// and directories are listed through the GitLab repository tree API. Every
// download is staged in a ".part" file beside its cache destination, resumed
// with a Range request after a transient failure, and atomically renamed into
// place once complete.
package remote
