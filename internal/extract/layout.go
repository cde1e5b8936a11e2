// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"path/filepath"
	"strings"

	"github.com/android-llm-paper/android-llm-paper/internal/buildprop"
)

// unknownSegment replaces empty or unusable identity values in output paths.
const unknownSegment = "unknown"

// Layout decides where a run writes.
type Layout struct {
	// Out returns the output directory for the identified build.
	Out func(buildprop.Identity) string
	// Scratch holds module unpack directories. It must outlive the run's
	// materialization step.
	Scratch string
	// Wipe removes the output directory before writing.
	Wipe bool
}

// RemoteLayout writes to <romDir>/<oem>/<product>/<branch>/out with scratch
// space in .../temp. Output is not wiped so cached downloads are reused.
func RemoteLayout(romDir, oem, product, branch string) Layout {
	base := filepath.Join(romDir, oem, product, branch)
	return Layout{
		Out:     func(buildprop.Identity) string { return filepath.Join(base, "out") },
		Scratch: filepath.Join(base, "temp"),
	}
}

// ImageLayout writes to <baseRomDir>/<brand>/<product>/<build id>, wiped first.
func ImageLayout(baseRomDir, scratch string) Layout {
	return Layout{
		Out: func(id buildprop.Identity) string {
			return filepath.Join(baseRomDir, segment(id.Brand), segment(id.Product), segment(id.BuildID))
		},
		Scratch: scratch,
		Wipe:    true,
	}
}

func segment(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return unknownSegment
	}
	return v
}
