// SPDX-License-Identifier: MPL-2.0

// Command romextract extracts classpaths and policies from Android firmware.
package main

import cmd "github.com/android-llm-paper/android-llm-paper/cmd/romextract"

func main() {
	cmd.Execute()
}
