// SPDX-License-Identifier: MPL-2.0

package apex

import (
	"errors"
	"testing"
)

func TestPackage_Lifecycle(t *testing.T) {
	t.Parallel()

	p := NewPackage("/system/system/apex/com.android.foo.apex", nil)
	for _, to := range []State{StateManifestRead, StatePayloadResolved, StateUnpacked} {
		if err := p.advance(to); err != nil {
			t.Fatalf("advance(%s) error = %v", to, err)
		}
	}
	if err := p.Classify(true); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Classify() from unpacked error = %v, want ErrInvalidTransition", err)
	}
	if err := p.MarkClasspathParsed(); err != nil {
		t.Fatalf("MarkClasspathParsed() error = %v", err)
	}
	if err := p.Classify(false); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if p.State() != StateOther || !p.Result().OK() {
		t.Errorf("state = %s, want other", p.State())
	}
	if err := p.Fail(ReasonDecodeError, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail() from terminal error = %v, want ErrInvalidTransition", err)
	}
}

func TestPackage_SkippingStatesRejected(t *testing.T) {
	t.Parallel()

	p := NewPackage("pkg", nil)
	if err := p.advance(StateUnpacked); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance(unpacked) from discovered error = %v, want ErrInvalidTransition", err)
	}
	if err := p.MarkClasspathParsed(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkClasspathParsed() from discovered error = %v, want ErrInvalidTransition", err)
	}
}

func TestPackage_FailFromEveryNonTerminalState(t *testing.T) {
	t.Parallel()

	path := []State{StateManifestRead, StatePayloadResolved, StateUnpacked, StateClasspathParsed}
	for n := 0; n <= len(path); n++ {
		p := NewPackage("pkg", []byte("blob"))
		for _, to := range path[:n] {
			if err := p.advance(to); err != nil {
				t.Fatal(err)
			}
		}
		from := p.State()
		cause := errors.New("boom")
		if err := p.Fail(ReasonUnpackFailed, cause); err != nil {
			t.Errorf("Fail() from %s error = %v", from, err)
			continue
		}
		r := p.Result()
		if r.State != StateFailed || r.Reason != ReasonUnpackFailed || !errors.Is(r.Err, cause) || r.OK() {
			t.Errorf("Result() after Fail from %s = %+v", from, r)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	t.Parallel()

	for s := StateDiscovered; s <= StateFailed; s++ {
		want := s == StateRuntime || s == StateOther || s == StateFailed
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}
