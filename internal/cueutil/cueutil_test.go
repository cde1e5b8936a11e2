// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

const testSchema = `
#Target: {
	oem:      string & != ""
	product:  string
	attempts: int & >=1 | *3
	mirror?:  bool
}
`

type target struct {
	OEM      string `json:"oem"`
	Product  string `json:"product"`
	Attempts int    `json:"attempts"`
	Mirror   bool   `json:"mirror,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	got, err := Decode[target]([]byte(testSchema), []byte(`
oem: "google"
product: "oriole"
`), "#Target", WithFilename("target.cue"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.OEM != "google" || got.Product != "oriole" {
		t.Errorf("Decode() = %+v", got)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want default 3", got.Attempts)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		opts     []Option
		contains []string
	}{
		{
			name:     "syntax error",
			data:     `oem: "google`,
			opts:     []Option{WithFilename("bad.cue")},
			contains: []string{"bad.cue"},
		},
		{
			name:     "constraint violation carries field path",
			data:     "oem: \"google\"\nproduct: \"x\"\nattempts: 0\n",
			opts:     []Option{WithFilename("target.cue")},
			contains: []string{"target.cue", "attempts"},
		},
		{
			name:     "unknown field rejected by closed definition",
			data:     "oem: \"google\"\nproduct: \"x\"\nbranch: \"main\"\n",
			contains: []string{"<input>", "branch"},
		},
		{
			name:     "file too large",
			data:     strings.Repeat(" ", 64),
			opts:     []Option{WithMaxFileSize(16), WithFilename("big.cue")},
			contains: []string{"big.cue", "exceeds maximum"},
		},
		{
			name:     "missing required value when concrete",
			data:     `oem: "google"`,
			contains: []string{"product"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode[target]([]byte(testSchema), []byte(tt.data), "#Target", tt.opts...)
			if err == nil {
				t.Fatal("Decode() error = nil, want error")
			}
			for _, s := range tt.contains {
				if !strings.Contains(err.Error(), s) {
					t.Errorf("error %q missing %q", err, s)
				}
			}
		})
	}
}

func TestUnify_NonConcrete(t *testing.T) {
	t.Parallel()

	if _, err := Unify([]byte(testSchema), []byte(`oem: "google"`), "#Target", WithConcrete(false)); err != nil {
		t.Errorf("Unify(concrete=false) error = %v", err)
	}
}

func TestUnify_UnknownDefinition(t *testing.T) {
	t.Parallel()

	_, err := Unify([]byte(testSchema), []byte(`oem: "google"`), "#Missing")
	if err == nil || !strings.Contains(err.Error(), "#Missing") {
		t.Errorf("Unify() error = %v, want schema definition error", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"log"}, "log"},
		{[]string{"mirror", "bucket"}, "mirror.bucket"},
		{[]string{"modules", "0", "name"}, "modules[0].name"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatError_Nil(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) should be nil")
	}
}
