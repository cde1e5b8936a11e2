// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"
)

// SetHomeDir points the platform's home and config directory variables at
// dir and returns a cleanup function restoring them:
//   - Windows: USERPROFILE and APPDATA
//   - Linux/macOS: HOME, with XDG_CONFIG_HOME set to dir/.config
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Cleanup(testutil.SetHomeDir(t, t.TempDir()))
//	    // Test code that resolves the config directory...
//	}
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	var restore []func()
	switch runtime.GOOS {
	case "windows":
		restore = append(restore, MustSetenv(t, "USERPROFILE", dir), MustSetenv(t, "APPDATA", dir))
	default:
		restore = append(restore, MustSetenv(t, "HOME", dir), MustSetenv(t, "XDG_CONFIG_HOME", dir+"/.config"))
	}
	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
	}
}
