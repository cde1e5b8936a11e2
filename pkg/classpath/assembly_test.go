// SPDX-License-Identifier: MPL-2.0

package classpath_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/android-llm-paper/android-llm-paper/internal/testutil/fwtest"
	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
	"github.com/android-llm-paper/android-llm-paper/pkg/descriptor"
)

// moduleDir writes descriptor blobs into a fake unpack directory. A nil blob
// leaves the descriptor absent.
func moduleDir(t *testing.T, boot, systemServer []byte) string {
	t.Helper()

	dir := t.TempDir()
	cpDir := filepath.Join(dir, "etc", "classpaths")
	if err := os.MkdirAll(cpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if boot != nil {
		if err := os.WriteFile(filepath.Join(cpDir, "bootclasspath.pb"), boot, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if systemServer != nil {
		if err := os.WriteFile(filepath.Join(cpDir, "systemserverclasspath.pb"), systemServer, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestAssembly_FinalizeMergeOrder(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if err := a.IngestBase(fwtest.BootClasspath("/framework/core.jar"), nil); err != nil {
		t.Fatalf("IngestBase() error = %v", err)
	}

	modules := []classpath.Module{
		{Name: "com.android.foo", Dir: moduleDir(t, fwtest.BootClasspath("/apex/com.android.foo/javalib/foo.jar"), nil)},
		{Name: classpath.RuntimeModule, Dir: moduleDir(t, fwtest.BootClasspath("/apex/com.android.art/javalib/core-oj.jar"), nil)},
	}
	for _, m := range modules {
		if err := a.Admit(m.Name); err != nil {
			t.Fatalf("Admit(%s) error = %v", m.Name, err)
		}
		if _, err := a.IngestModule(m); err != nil {
			t.Fatalf("IngestModule(%s) error = %v", m.Name, err)
		}
	}

	merged, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	want := "/apex/com.android.art/javalib/core-oj.jar:/framework/core.jar:/apex/com.android.foo/javalib/foo.jar"
	if got := merged[classpath.KindBoot].String(); got != want {
		t.Errorf("boot classpath = %q, want %q", got, want)
	}
	if got := merged[classpath.KindSystemServer].Entries; len(got) != 0 {
		t.Errorf("system server classpath = %v, want empty", got)
	}
}

func TestAssembly_OthersKeepDiscoveryOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if err := a.IngestBase(nil, fwtest.SystemServerClasspath("/system/framework/services.jar")); err != nil {
		t.Fatal(err)
	}
	ingest := []classpath.Module{
		{Name: "com.android.zeta", Dir: moduleDir(t, nil, fwtest.SystemServerClasspath("/apex/com.android.zeta/javalib/z.jar", "/system/framework/services.jar"))},
		{Name: classpath.RuntimeModule, Dir: moduleDir(t, nil, nil)},
		{Name: "com.android.alpha", Dir: moduleDir(t, nil, fwtest.SystemServerClasspath("/apex/com.android.alpha/javalib/a.jar"))},
	}
	for _, m := range ingest {
		role, err := a.IngestModule(m)
		if err != nil {
			t.Fatalf("IngestModule(%s) error = %v", m.Name, err)
		}
		wantRole := classpath.RoleOther
		if m.Name == classpath.RuntimeModule {
			wantRole = classpath.RoleRuntime
		}
		if role != wantRole {
			t.Errorf("IngestModule(%s) role = %v, want %v", m.Name, role, wantRole)
		}
	}

	merged, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"/system/framework/services.jar",
		"/apex/com.android.zeta/javalib/z.jar",
		"/system/framework/services.jar",
		"/apex/com.android.alpha/javalib/a.jar",
	}
	if got := merged[classpath.KindSystemServer].Paths(); !slices.Equal(got, want) {
		t.Errorf("system server classpath = %v, want %v", got, want)
	}
}

func TestAssembly_FinalizeWithoutRuntime(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if err := a.IngestBase(fwtest.BootClasspath("/framework/core.jar"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := a.IngestModule(classpath.Module{Name: "com.android.foo", Dir: moduleDir(t, nil, nil)}); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Finalize(); !errors.Is(err, classpath.ErrMissingRuntimeModule) {
		t.Errorf("Finalize() error = %v, want ErrMissingRuntimeModule", err)
	}
}

func TestAssembly_AdmitRejectsIngestedNames(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	for _, name := range []string{"com.android.foo", classpath.RuntimeModule} {
		if err := a.Admit(name); err != nil {
			t.Fatalf("Admit(%s) before ingest error = %v", name, err)
		}
		if err := a.Admit(name); err != nil {
			t.Fatalf("Admit(%s) twice before ingest error = %v", name, err)
		}
		if _, err := a.IngestModule(classpath.Module{Name: name, Dir: moduleDir(t, nil, nil)}); err != nil {
			t.Fatalf("IngestModule(%s) error = %v", name, err)
		}
	}

	if err := a.Admit(classpath.RuntimeModule); !errors.Is(err, classpath.ErrDuplicateRuntimeModule) {
		t.Errorf("Admit(runtime) after ingest error = %v, want ErrDuplicateRuntimeModule", err)
	}
	err := a.Admit("com.android.foo")
	if !errors.Is(err, classpath.ErrDuplicateModule) {
		t.Errorf("Admit(other) after ingest error = %v, want ErrDuplicateModule", err)
	}
	if errors.Is(err, classpath.ErrDuplicateRuntimeModule) {
		t.Errorf("Admit(other) error = %v, must not be ErrDuplicateRuntimeModule", err)
	}
	if _, err := a.IngestModule(classpath.Module{Name: "com.android.foo", Dir: moduleDir(t, nil, nil)}); !errors.Is(err, classpath.ErrDuplicateModule) {
		t.Errorf("IngestModule(other) twice error = %v, want ErrDuplicateModule", err)
	}
}

func TestAssembly_FailedRuntimeDoesNotBlockLaterRuntime(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if err := a.IngestBase(nil, nil); err != nil {
		t.Fatal(err)
	}

	// The first art package passes Admit and then fails before ingestion.
	if err := a.Admit(classpath.RuntimeModule); err != nil {
		t.Fatalf("Admit(first) error = %v", err)
	}
	broken := moduleDir(t, []byte{0x0a, 0x05, 0x0a}, nil)
	if _, err := a.IngestModule(classpath.Module{Name: classpath.RuntimeModule, Dir: broken}); !errors.Is(err, descriptor.ErrMalformed) {
		t.Fatalf("IngestModule(first) error = %v, want ErrMalformed", err)
	}

	if err := a.Admit(classpath.RuntimeModule); err != nil {
		t.Fatalf("Admit(second) error = %v, want nil after a failed claimant", err)
	}
	good := moduleDir(t, fwtest.BootClasspath("/apex/com.android.art/javalib/core-oj.jar"), nil)
	if _, err := a.IngestModule(classpath.Module{Name: classpath.RuntimeModule, Dir: good}); err != nil {
		t.Fatalf("IngestModule(second) error = %v", err)
	}

	merged, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got, want := merged[classpath.KindBoot].String(), "/apex/com.android.art/javalib/core-oj.jar"; got != want {
		t.Errorf("boot classpath = %q, want %q", got, want)
	}
	if got, _ := a.ModuleDir(classpath.RuntimeModule); got != good {
		t.Errorf("ModuleDir(runtime) = %q, want %q", got, good)
	}
}

func TestAssembly_IngestModuleDecodeErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	dir := moduleDir(t, fwtest.BootClasspath("/apex/com.android.art/javalib/core-oj.jar"), []byte{0x0a, 0x05, 0x0a})
	_, err := a.IngestModule(classpath.Module{Name: classpath.RuntimeModule, Dir: dir})
	if !errors.Is(err, descriptor.ErrMalformed) {
		t.Fatalf("IngestModule() error = %v, want ErrMalformed", err)
	}
	if a.HasRuntime() {
		t.Error("runtime slot filled by a module that failed to decode")
	}
	if got, ok := a.ModuleDir(classpath.RuntimeModule); ok {
		t.Errorf("ModuleDir() = %q, want no registration for a failed module", got)
	}
	if _, err := a.Finalize(); !errors.Is(err, classpath.ErrMissingRuntimeModule) {
		t.Errorf("Finalize() error = %v, want ErrMissingRuntimeModule", err)
	}
}

func TestAssembly_IngestBaseDecodesKindsIndependently(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	err := a.IngestBase([]byte{0x0a, 0x05, 0x0a}, fwtest.SystemServerClasspath("/system/framework/services.jar"))
	if !errors.Is(err, descriptor.ErrMalformed) {
		t.Fatalf("IngestBase() error = %v, want ErrMalformed", err)
	}
	if _, err := a.IngestModule(classpath.Module{Name: classpath.RuntimeModule, Dir: moduleDir(t, nil, nil)}); err != nil {
		t.Fatal(err)
	}

	merged, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got := merged[classpath.KindBoot].Entries; len(got) != 0 {
		t.Errorf("boot classpath = %v, want empty after a malformed descriptor", got)
	}
	if got, want := merged[classpath.KindSystemServer].String(), "/system/framework/services.jar"; got != want {
		t.Errorf("system server classpath = %q, want %q", got, want)
	}
	if err := a.IngestBase(nil, nil); !errors.Is(err, classpath.ErrBaseAlreadyIngested) {
		t.Errorf("IngestBase() after partial failure error = %v, want ErrBaseAlreadyIngested", err)
	}
}

func TestAssembly_IngestBaseTwice(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if err := a.IngestBase(nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := a.IngestBase(nil, nil); !errors.Is(err, classpath.ErrBaseAlreadyIngested) {
		t.Errorf("second IngestBase() error = %v, want ErrBaseAlreadyIngested", err)
	}
}

func TestAssembly_IngestModuleInvalid(t *testing.T) {
	t.Parallel()

	a := classpath.NewAssembly(descriptor.NewCodec())
	if _, err := a.IngestModule(classpath.Module{Name: "com.android.foo"}); !errors.Is(err, classpath.ErrInvalidModule) {
		t.Errorf("IngestModule() error = %v, want ErrInvalidModule", err)
	}
}
