package matcher

import (
	"context"

	"ciphera/internal/extractor"
	"ciphera/internal/identity"
	"ciphera/internal/node/encoding"
)

// Embedding matches probes by Euclidean distance against the encoding cache,
// using vote-then-distance resolution: every cached entry within tolerance
// votes for its identity, the identity with the most votes wins, and ties go
// to whichever identity appeared first in cache order.
type Embedding struct {
	extract   extractor.Client
	cache     *encoding.Cache
	records   Snapshot
	tolerance float64
}

// NewEmbedding builds the embedding strategy. A non-positive tolerance falls
// back to DefaultTolerance.
func NewEmbedding(extract extractor.Client, cache *encoding.Cache, records Snapshot, tolerance float64) *Embedding {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Embedding{
		extract:   extract,
		cache:     cache,
		records:   records,
		tolerance: tolerance,
	}
}

func (m *Embedding) Match(ctx context.Context, probe []byte) (Result, error) {
	vectors, err := m.extract.Embeddings(ctx, probe)
	if err != nil {
		return Result{}, err
	}
	if len(vectors) == 0 {
		return Result{Reason: ReasonNoFaceDetected}, nil
	}
	probeVec := vectors[0]

	recs, err := m.records(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(recs) == 0 {
		return Result{Reason: ReasonNoEnrollments}, nil
	}

	tags, embeddings, err := m.cache.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(embeddings) == 0 {
		return Result{Reason: ReasonNoMatch}, nil
	}

	distances := make([]float64, len(embeddings))
	votes := make(map[string]int)
	voteOrder := make([]string, 0, 4) // first-seen cache order, breaks ties
	globalBest := 0
	for i, emb := range embeddings {
		d := extractor.Distance(probeVec, emb)
		distances[i] = d
		if d < distances[globalBest] {
			globalBest = i
		}
		if d <= m.tolerance {
			if votes[tags[i]] == 0 {
				voteOrder = append(voteOrder, tags[i])
			}
			votes[tags[i]]++
		}
	}

	winnerTag, winnerDistance, found := resolveVotes(tags, distances, votes, voteOrder)
	if !found {
		// Pure nearest-neighbor fallback: accept the globally closest
		// entry only when it crosses tolerance.
		if distances[globalBest] > m.tolerance {
			return Result{Reason: ReasonNoMatch}, nil
		}
		winnerTag, winnerDistance = tags[globalBest], distances[globalBest]
	}

	key, ok := keyForSlug(recs, winnerTag)
	if !ok {
		// Cache entry for an identity the store no longer knows; treat as
		// no match rather than reporting an unresolvable subject.
		return Result{Reason: ReasonNoMatch}, nil
	}
	return Result{Verified: true, IdentityKey: key, Distance: winnerDistance}, nil
}

// resolveVotes picks the identity with the most sub-tolerance votes. The
// reported distance is the minimum across the winner's own cached entries,
// falling back to the global minimum when the winner somehow has none.
func resolveVotes(tags []string, distances []float64, votes map[string]int, voteOrder []string) (string, float64, bool) {
	if len(votes) == 0 {
		return "", 0, false
	}

	winner := ""
	most := 0
	for _, tag := range voteOrder {
		if votes[tag] > most {
			winner = tag
			most = votes[tag]
		}
	}

	best := -1
	globalBest := 0
	for i, tag := range tags {
		if distances[i] < distances[globalBest] {
			globalBest = i
		}
		if tag != winner {
			continue
		}
		if best == -1 || distances[i] < distances[best] {
			best = i
		}
	}
	if best == -1 {
		best = globalBest
	}
	return winner, distances[best], true
}

func keyForSlug(recs map[string]identity.Record, slug string) (string, bool) {
	for key, rec := range recs {
		if rec.Slug == slug {
			return key, true
		}
	}
	return "", false
}
