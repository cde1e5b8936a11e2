// SPDX-License-Identifier: MPL-2.0

package apex

import (
	"errors"
	"fmt"

	"github.com/android-llm-paper/android-llm-paper/pkg/descriptor"
)

// Package lifecycle states.
const (
	StateDiscovered State = iota
	StateManifestRead
	StatePayloadResolved
	StateUnpacked
	StateClasspathParsed
	StateRuntime
	StateOther
	StateFailed
)

// Failure reasons.
const (
	ReasonNone Reason = iota
	ReasonFetchFailed
	ReasonInvalidContainer
	ReasonManifestMissing
	ReasonDecodeError
	ReasonInvalidName
	ReasonDuplicateRuntimeModule
	ReasonPayloadMissing
	ReasonUnpackFailed
	ReasonDuplicateModule
)

// ErrInvalidTransition is returned when a package is moved out of order.
var ErrInvalidTransition = errors.New("invalid package state transition")

type (
	// State is a package's lifecycle position.
	State int

	// Reason explains why a package failed.
	Reason int

	// Package is one discovered module package and its classification state.
	Package struct {
		// Source identifies where the package came from, e.g. its virtual path.
		Source string

		blob     []byte
		manifest descriptor.Manifest
		payload  []byte
		dir      string

		state  State
		reason Reason
		err    error
	}

	// Result is an immutable snapshot of a package's outcome.
	Result struct {
		Source string
		// Name is the canonical module name, empty if the manifest was never read.
		Name   string
		Dir    string
		State  State
		Reason Reason
		Err    error
	}
)

// next lists the forward transition out of each non-terminal state, except
// ClasspathParsed which branches into Runtime or Other.
var next = map[State]State{
	StateDiscovered:      StateManifestRead,
	StateManifestRead:    StatePayloadResolved,
	StatePayloadResolved: StateUnpacked,
	StateUnpacked:        StateClasspathParsed,
}

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateManifestRead:
		return "manifest-read"
	case StatePayloadResolved:
		return "payload-resolved"
	case StateUnpacked:
		return "unpacked"
	case StateClasspathParsed:
		return "classpath-parsed"
	case StateRuntime:
		return "runtime"
	case StateOther:
		return "other"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRuntime || s == StateOther || s == StateFailed
}

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonFetchFailed:
		return "fetch failed"
	case ReasonInvalidContainer:
		return "invalid container"
	case ReasonManifestMissing:
		return "manifest missing"
	case ReasonDecodeError:
		return "decode error"
	case ReasonInvalidName:
		return "invalid module name"
	case ReasonDuplicateRuntimeModule:
		return "duplicate runtime module"
	case ReasonPayloadMissing:
		return "payload missing"
	case ReasonUnpackFailed:
		return "unpack failed"
	case ReasonDuplicateModule:
		return "duplicate module"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// NewPackage returns a Discovered package for blob.
func NewPackage(source string, blob []byte) *Package {
	return &Package{Source: source, blob: blob}
}

// State returns the current lifecycle state.
func (p *Package) State() State { return p.state }

// Name returns the canonical module name once the manifest was read.
func (p *Package) Name() string { return p.manifest.Name }

// Manifest returns the decoded manifest.
func (p *Package) Manifest() descriptor.Manifest { return p.manifest }

// Dir returns the unpack directory once the package was unpacked.
func (p *Package) Dir() string { return p.dir }

// Reason returns why the package failed, or ReasonNone.
func (p *Package) Reason() Reason { return p.reason }

// Err returns the failure cause, if any.
func (p *Package) Err() error { return p.err }

// Result snapshots the package's outcome.
func (p *Package) Result() Result {
	return Result{
		Source: p.Source,
		Name:   p.manifest.Name,
		Dir:    p.dir,
		State:  p.state,
		Reason: p.reason,
		Err:    p.err,
	}
}

// Fail moves the package to StateFailed. It is valid from every non-terminal state.
func (p *Package) Fail(reason Reason, err error) error {
	if p.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, StateFailed)
	}
	p.state = StateFailed
	p.reason = reason
	p.err = err
	p.blob = nil
	p.payload = nil
	return nil
}

// MarkClasspathParsed records that the package's descriptors were ingested.
func (p *Package) MarkClasspathParsed() error {
	return p.advance(StateClasspathParsed)
}

// Classify moves a ClasspathParsed package to StateRuntime or StateOther.
func (p *Package) Classify(runtime bool) error {
	if p.state != StateClasspathParsed {
		return fmt.Errorf("%w: classify from %s", ErrInvalidTransition, p.state)
	}
	if runtime {
		p.state = StateRuntime
	} else {
		p.state = StateOther
	}
	return nil
}

func (p *Package) advance(to State) error {
	if want, ok := next[p.state]; !ok || want != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, to)
	}
	p.state = to
	return nil
}

// OK reports whether the package classified as Runtime or Other.
func (r Result) OK() bool {
	return r.State == StateRuntime || r.State == StateOther
}
