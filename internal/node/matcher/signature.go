package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Signature matches probes by exact content-signature equality: a probe
// verifies only when it is byte-identical to the enrollment image. Used when
// no embedding extractor is available; stricter and non-probabilistic.
type Signature struct {
	records Snapshot
}

func NewSignature(records Snapshot) *Signature {
	return &Signature{records: records}
}

// Sum returns the content signature stored for an enrollment image.
func Sum(image []byte) string {
	digest := sha256.Sum256(image)
	return hex.EncodeToString(digest[:])
}

func (m *Signature) Match(ctx context.Context, probe []byte) (Result, error) {
	recs, err := m.records(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(recs) == 0 {
		return Result{Reason: ReasonNoEnrollments}, nil
	}

	probeSignature := Sum(probe)

	// Stable key order keeps repeated lookups deterministic even if two
	// identities were somehow enrolled with the same image.
	keys := make([]string, 0, len(recs))
	for key := range recs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if sig := recs[key].Signature; sig != "" && sig == probeSignature {
			return Result{Verified: true, IdentityKey: key, Distance: 0.0}, nil
		}
	}
	return Result{Reason: ReasonNoMatch}, nil
}
