package gateway

import (
	"context"

	"ciphera/internal/identity"
	"ciphera/internal/node"
	"ciphera/internal/quorum"
)

// VerifierClient is the gateway's view of one verifier node. Implementations
// must honor context cancellation; the fan-out relies on per-call timeouts.
type VerifierClient interface {
	Register(ctx context.Context, enrollment identity.Enrollment, samples [][]byte) (*node.RegisterResult, error)
	Verify(ctx context.Context, probe []byte) (*node.VerifyResult, error)
	ClassifierLookup(ctx context.Context, label string) (*node.LookupResult, error)
}

// Node pairs a configured node name with its client. The slice order given to
// the service is the canonical vote order.
type Node struct {
	Name   string
	Client VerifierClient
}

// BroadcastResult is one node's outcome within a registration broadcast.
type BroadcastResult struct {
	Node        string `json:"node"`
	Status      string `json:"status"`
	IdentityKey string `json:"identityKey,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RegisteredProfile echoes the enrollment back to the caller.
type RegisteredProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	identity.Profile
	FaceSlug    string `json:"face_slug"`
	SampleCount int    `json:"sample_count"`
}

// RegisterResult is the gateway's registration response.
type RegisterResult struct {
	Message string            `json:"message"`
	Results []BroadcastResult `json:"results"`
	Profile RegisteredProfile `json:"profile"`
}

// VerifyResult is the gateway's verification response. A rejected probe is a
// normal result carrying the full vote list, not an error.
type VerifyResult struct {
	Authenticated bool                      `json:"authenticated"`
	Subject       string                    `json:"user,omitempty"`
	Token         string                    `json:"token,omitempty"`
	Votes         []quorum.Vote             `json:"votes"`
	Profile       *quorum.AggregatedProfile `json:"profile,omitempty"`
	Metrics       *quorum.Metrics           `json:"metrics,omitempty"`
}

// ClassifierMatch is one merged identity in a classifier lookup, with the
// nodes that reported it.
type ClassifierMatch struct {
	IdentityKey string           `json:"identityKey"`
	Name        string           `json:"name"`
	Profile     identity.Profile `json:"profile"`
	Probability *float64         `json:"probability,omitempty"`
	Sources     []string         `json:"sources"`
}

// ClassifierResult is the gateway's merged classifier lookup response.
type ClassifierResult struct {
	Label   string            `json:"label"`
	Count   int               `json:"count"`
	Matches []ClassifierMatch `json:"matches"`
}
