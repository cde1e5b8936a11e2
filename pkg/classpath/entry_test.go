// SPDX-License-Identifier: MPL-2.0

package classpath

import "testing"

func TestEntry_Module(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		wantName string
		wantRel  string
		wantOK   bool
	}{
		{"/apex/com.android.art/javalib/core-oj.jar", "com.android.art", "javalib/core-oj.jar", true},
		{"/apex/com.android.foo/javalib/sub/foo.jar", "com.android.foo", "javalib/sub/foo.jar", true},
		{"/apex/com.android.bar", "com.android.bar", "", true},
		{"/apex/", "", "", false},
		{"/system/framework/core.jar", "", "", false},
		{"/framework/apex/x.jar", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			e := Entry{Path: tt.path}
			name, ok := e.Module()
			if name != tt.wantName || ok != tt.wantOK {
				t.Errorf("Module() = (%q, %v), want (%q, %v)", name, ok, tt.wantName, tt.wantOK)
			}
			if ok {
				if rel := e.ModuleRelative(); rel != tt.wantRel {
					t.Errorf("ModuleRelative() = %q, want %q", rel, tt.wantRel)
				}
			}
		})
	}
}

func TestEntry_SourcePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/framework/core.jar", "/system/framework/core.jar"},
		{"/system/framework/services.jar", "/system/system/framework/services.jar"},
		{"/system_ext/framework/ext.jar", "/system_ext/framework/ext.jar"},
		{"/product/framework/p.jar", "/system/product/framework/p.jar"},
		{"framework/relative.jar", "/system/framework/relative.jar"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			if got := (Entry{Path: tt.path}).SourcePath(); got != tt.want {
				t.Errorf("SourcePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_Names(t *testing.T) {
	t.Parallel()

	if got := KindBoot.ListName(); got != "bootclasspath.txt" {
		t.Errorf("KindBoot.ListName() = %q", got)
	}
	if got := KindSystemServer.TreeName(); got != "systemservercp" {
		t.Errorf("KindSystemServer.TreeName() = %q", got)
	}
	if got := KindSystemServer.DescriptorName(); got != "systemserverclasspath.pb" {
		t.Errorf("KindSystemServer.DescriptorName() = %q", got)
	}
	if got := Kind(7).String(); got != "Kind(7)" {
		t.Errorf("Kind(7).String() = %q", got)
	}
}

func TestFragment_EntriesIsCopy(t *testing.T) {
	t.Parallel()

	f := NewFragment(ModuleOrigin("com.android.foo"), KindBoot, []string{"/a.jar", "/b.jar"})
	entries := f.Entries()
	entries[0].Path = "/mutated.jar"

	if got := f.Paths()[0]; got != "/a.jar" {
		t.Errorf("fragment mutated through Entries(): first path = %q", got)
	}
	if name, ok := f.Origin().Module(); !ok || name != "com.android.foo" {
		t.Errorf("Origin().Module() = (%q, %v)", name, ok)
	}
	if got := BaseOrigin().String(); got != "base" {
		t.Errorf("BaseOrigin().String() = %q", got)
	}
}
