// Package matcher decides whether a probe image matches an enrolled identity
// in a node's local store. Two interchangeable strategies exist: embedding
// nearest-neighbor and exact-signature equality. A node picks one at
// construction time.
package matcher

import (
	"context"

	"ciphera/internal/identity"
)

// DefaultTolerance is the maximum embedding distance at which two samples are
// considered the same identity.
const DefaultTolerance = 0.45

// Reason explains a negative match. These are normal outcomes, not errors,
// and travel on the wire verbatim.
type Reason string

const (
	ReasonNoFaceDetected Reason = "face_not_detected"
	ReasonNoEnrollments  Reason = "no_enrollments"
	ReasonNoMatch        Reason = "no_match"
)

// Result is a single node's local match decision.
type Result struct {
	Verified    bool
	IdentityKey string
	Distance    float64
	Reason      Reason
}

// Snapshot supplies the current enrollment map. Matchers never mutate it.
type Snapshot func(ctx context.Context) (map[string]identity.Record, error)

// Matcher matches a probe image against the node's enrollments.
type Matcher interface {
	Match(ctx context.Context, probe []byte) (Result, error)
}
