// Package quorum turns N independent verifier-node votes into one
// authoritative accept/reject decision with an auditable confidence score.
// Everything here is pure computation over a settled vote list; the gateway
// owns the fan-out that produces it.
package quorum

import (
	"math"

	"ciphera/internal/identity"
	pstrings "ciphera/pkg/platform/strings"
)

// Vote is a single verifier node's answer to a verification request. An
// unreachable or erroring node contributes a negative vote with its Error
// set; it is never retried within the request.
type Vote struct {
	Node        string            `json:"node"`
	Verified    bool              `json:"verified"`
	IdentityKey string            `json:"identityKey,omitempty"`
	Distance    *float64          `json:"distance,omitempty"`
	Profile     *identity.Profile `json:"profile,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// ProfileEntry is one positive voter's view of the subject's profile.
type ProfileEntry struct {
	Node    string           `json:"node"`
	Profile identity.Profile `json:"profile"`
}

// AggregatedProfile merges the positive voters' profile data. Sources keeps
// first-seen order; Classification is the first non-empty one found.
type AggregatedProfile struct {
	IdentityKey    string                   `json:"identityKey"`
	Sources        []string                 `json:"sources"`
	Entries        []ProfileEntry           `json:"entries"`
	Classification *identity.Classification `json:"classification,omitempty"`
}

// Metrics summarizes the distance information of the positive votes.
type Metrics struct {
	BestDistance     float64 `json:"best_distance"`
	AverageDistance  float64 `json:"average_distance"`
	Confidence       float64 `json:"confidence"`
	PositiveVotes    int     `json:"positive_votes"`
	RequiredMajority int     `json:"required_majority"`
}

// Decision is the gateway's quorum outcome, computed fresh per request.
type Decision struct {
	Authenticated    bool
	Subject          string
	PositiveVotes    int
	RequiredMajority int

	// Nodes lists positive voters in vote order; it goes into the token.
	Nodes []string

	Profile *AggregatedProfile
	Metrics *Metrics

	// ConflictingIdentities holds identities reported by positive voters
	// that disagree with the canonical subject. The protocol deliberately
	// keeps the first positive vote's identity; conflicts are surfaced for
	// audit rather than reconciled.
	ConflictingIdentities []string
}

// RequiredMajority returns the strict majority for n nodes: floor(n/2)+1.
func RequiredMajority(n int) int {
	return n/2 + 1
}

// Decide applies the quorum rule to a settled vote list. The vote order must
// follow the configured node order; the first positive vote's identity is
// taken as canonical subject.
func Decide(votes []Vote, nodeCount int) Decision {
	required := RequiredMajority(nodeCount)

	positives := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Verified {
			positives = append(positives, v)
		}
	}

	decision := Decision{
		PositiveVotes:    len(positives),
		RequiredMajority: required,
	}
	if len(positives) < required {
		return decision
	}

	decision.Authenticated = true
	decision.Subject = positives[0].IdentityKey

	nodes := make([]string, 0, len(positives))
	for _, v := range positives {
		nodes = append(nodes, v.Node)
		if v.IdentityKey != "" && v.IdentityKey != decision.Subject {
			decision.ConflictingIdentities = appendUnique(decision.ConflictingIdentities, v.IdentityKey)
		}
	}
	decision.Nodes = nodes

	decision.Profile = aggregateProfile(decision.Subject, positives)
	decision.Metrics = voteMetrics(positives, required)
	return decision
}

func aggregateProfile(subject string, positives []Vote) *AggregatedProfile {
	entries := make([]ProfileEntry, 0, len(positives))
	sources := make([]string, 0, len(positives))
	var classification *identity.Classification

	for _, v := range positives {
		sources = append(sources, v.Node)
		if v.Profile == nil {
			continue
		}
		entries = append(entries, ProfileEntry{Node: v.Node, Profile: *v.Profile})
		if classification == nil && v.Profile.Classification != nil {
			classification = v.Profile.Classification
		}
	}
	if len(entries) == 0 {
		return nil
	}

	return &AggregatedProfile{
		IdentityKey:    subject,
		Sources:        pstrings.DedupeAndTrim(sources),
		Entries:        entries,
		Classification: classification,
	}
}

func voteMetrics(positives []Vote, required int) *Metrics {
	distances := make([]float64, 0, len(positives))
	for _, v := range positives {
		if v.Distance != nil {
			distances = append(distances, *v.Distance)
		}
	}
	if len(distances) == 0 {
		return nil
	}

	best := distances[0]
	sum := 0.0
	for _, d := range distances {
		if d < best {
			best = d
		}
		sum += d
	}

	confidence := math.Max(0, math.Min(1, 1-best))
	return &Metrics{
		BestDistance:     round4(best),
		AverageDistance:  round4(sum / float64(len(distances))),
		Confidence:       round4(confidence),
		PositiveVotes:    len(positives),
		RequiredMajority: required,
	}
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
