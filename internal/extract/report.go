// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"fmt"
	"strings"

	"github.com/android-llm-paper/android-llm-paper/internal/buildprop"
	"github.com/android-llm-paper/android-llm-paper/pkg/apex"
	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
)

type (
	// Report summarizes one run.
	Report struct {
		OutDir   string
		Identity buildprop.Identity
		Policies []PolicyResult
		// Modules holds one result per discovered package in discovery order.
		Modules []apex.Result
		// Classpaths holds one entry per materialized kind.
		Classpaths []classpath.Stats
	}

	// PolicyResult records one SELinux policy artifact.
	PolicyResult struct {
		Name string
		// Found is false when the policy was absent from the source.
		Found   bool
		Written bool
	}
)

// Failed returns the results of failed packages.
func (r *Report) Failed() []apex.Result {
	var out []apex.Result
	for _, m := range r.Modules {
		if m.State == apex.StateFailed {
			out = append(out, m)
		}
	}
	return out
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Extraction report\n\n")
	if r.Identity.Fingerprint != "" {
		fmt.Fprintf(&b, "**Fingerprint:** `%s`  \n", r.Identity.Fingerprint)
	}
	if r.Identity.SecurityPatch != "" {
		fmt.Fprintf(&b, "**Security patch:** %s  \n", r.Identity.SecurityPatch)
	}
	fmt.Fprintf(&b, "**Output:** `%s`\n\n", r.OutDir)

	if len(r.Modules) > 0 {
		fmt.Fprintf(&b, "## Modules (%d, %d failed)\n\n", len(r.Modules), len(r.Failed()))
		b.WriteString("| Package | Module | Outcome | Reason |\n|---|---|---|---|\n")
		for _, m := range r.Modules {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(baseName(m.Source)), cell(m.Name), m.State, cell(m.Reason.String()))
		}
		b.WriteString("\n")
	}

	if len(r.Classpaths) > 0 {
		b.WriteString("## Classpaths\n\n| Classpath | Listed | Materialized | Missing |\n|---|---|---|---|\n")
		for _, s := range r.Classpaths {
			fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", s.Kind, s.Listed, s.Materialized, len(s.Missing))
		}
		b.WriteString("\n")
	}

	if len(r.Policies) > 0 {
		b.WriteString("## SELinux policies\n\n")
		for _, p := range r.Policies {
			state := "written"
			switch {
			case !p.Written:
				state = "missing"
			case !p.Found:
				state = "absent (empty file)"
			}
			fmt.Fprintf(&b, "- `%s`: %s\n", p.Name, state)
		}
	}
	return b.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
