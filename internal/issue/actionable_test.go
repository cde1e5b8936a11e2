// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"

	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "assemble classpaths"},
			want: "failed to assemble classpaths",
		},
		{
			name: "image path and cause",
			err: &ActionableError{
				Operation: "open firmware image",
				Resource:  "./system.img",
				Cause:     errors.New("no such file or directory"),
			},
			want: "failed to open firmware image: ./system.img: no such file or directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_UnwrapsToSentinel(t *testing.T) {
	t.Parallel()

	err := NewErrorContext().
		WithOperation("assemble classpaths").
		WithIssue(MissingRuntimeModuleId).
		Wrap(classpath.ErrMissingRuntimeModule).
		BuildError()
	if !errors.Is(err, classpath.ErrMissingRuntimeModule) {
		t.Errorf("errors.Is(%v, ErrMissingRuntimeModule) = false", err)
	}
	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() = %T, want *ActionableError", err)
	}
	if got := ae.CatalogIssue(); got == nil || got.Id() != MissingRuntimeModuleId {
		t.Errorf("CatalogIssue() = %v, want MissingRuntimeModule issue", got)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	err := &ActionableError{
		Operation:   "fetch remote firmware",
		Resource:    "google/redfin/main",
		Suggestions: []string{"Check the remote base URL", "Retry with --verbose"},
		Cause: &ActionableError{
			Operation: "download build.prop",
			Cause:     errors.New("404 Not Found"),
		},
	}

	plain := err.Format(false)
	for _, want := range []string{"google/redfin/main", "• Check the remote base URL", "• Retry with --verbose"} {
		if !strings.Contains(plain, want) {
			t.Errorf("Format(false) missing %q:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "Error chain:") {
		t.Errorf("Format(false) includes the error chain:\n%s", plain)
	}

	verbose := err.Format(true)
	for _, want := range []string{"Error chain:", "1. failed to download build.prop: 404 Not Found", "2. 404 Not Found"} {
		if !strings.Contains(verbose, want) {
			t.Errorf("Format(true) missing %q:\n%s", want, verbose)
		}
	}
}

func TestErrorContext_BuildError(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().WithResource("./system.img").BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want nil", err)
	}

	ctx := NewErrorContext().
		WithOperation("write classpath tree").
		WithResource("/apex/com.android.art/javalib/core-oj.jar").
		WithSuggestion("Check free disk space")
	first := ctx.Wrap(errors.New("disk full")).BuildError()
	second := ctx.WithSuggestion("Check directory permissions").Wrap(errors.New("permission denied")).BuildError()

	var a, b *ActionableError
	if !errors.As(first, &a) || !errors.As(second, &b) {
		t.Fatal("BuildError() should return *ActionableError")
	}
	if a.Cause.Error() != "disk full" || b.Cause.Error() != "permission denied" {
		t.Errorf("causes = %v, %v", a.Cause, b.Cause)
	}
	if len(a.Suggestions) != 1 || len(b.Suggestions) != 2 {
		t.Errorf("suggestions = %v, %v; earlier error should not see later suggestions", a.Suggestions, b.Suggestions)
	}
	if !b.HasSuggestions() || (&ActionableError{}).HasSuggestions() {
		t.Error("HasSuggestions() mismatch")
	}
}
