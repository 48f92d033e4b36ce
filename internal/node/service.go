// Package node implements a verifier node: one enrollment store, one matcher
// strategy, and the register / verify / classifier-lookup operations the
// gateway fans out to. Nodes are fully independent; nothing here talks to a
// sibling node.
package node

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"ciphera/internal/extractor"
	"ciphera/internal/identity"
	"ciphera/internal/node/encoding"
	"ciphera/internal/node/matcher"
	"ciphera/internal/node/metrics"
	"ciphera/internal/node/samples"
	"ciphera/internal/node/store"
	dErrors "ciphera/pkg/domain-errors"
)

// Service owns one node's enrollment store and matcher.
//
// The mutex spans the whole register read-modify-write, including sample
// persistence and the encoding cache rebuild: a registration is not complete,
// and the identity not matchable, until the rebuild finishes. Registrations
// on one node serialize; different nodes never coordinate.
type Service struct {
	store   store.Store
	match   matcher.Matcher
	samples *samples.Storage // nil on signature nodes
	cache   *encoding.Cache  // nil on signature nodes
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// NewSignatureService builds a node using exact-signature matching. No
// extractor, samples, or encoding cache are involved.
func NewSignatureService(st store.Store, logger *slog.Logger, m *metrics.Metrics) *Service {
	s := &Service{store: st, logger: logger, metrics: m}
	s.match = matcher.NewSignature(s.snapshot)
	return s
}

// NewEmbeddingService builds a node using embedding nearest-neighbor matching
// over a sample-backed encoding cache.
func NewEmbeddingService(
	st store.Store,
	smp *samples.Storage,
	extract extractor.Client,
	tolerance float64,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	s := &Service{store: st, samples: smp, logger: logger, metrics: m}
	s.cache = encoding.New(smp, extract, logger)
	s.match = matcher.NewEmbedding(extract, s.cache, s.snapshot, tolerance)
	return s
}

func (s *Service) snapshot(ctx context.Context) (map[string]identity.Record, error) {
	return s.store.Load(ctx)
}

// RegisterRequest carries a candidate identity and its raw samples.
type RegisterRequest struct {
	Enrollment identity.Enrollment
	Samples    [][]byte
}

// RegisterResult is the node's answer on the wire.
type RegisterResult struct {
	Status      string           `json:"status"`
	IdentityKey string           `json:"identityKey"`
	Profile     identity.Profile `json:"profile"`
}

// Register validates and stores an enrollment, overwriting any previous
// record under the same identity key.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	start := time.Now()

	req.Enrollment.Normalize()
	if err := req.Enrollment.Validate(); err != nil {
		return nil, err
	}

	usable := usableSamples(req.Samples)
	if len(usable) == 0 {
		return nil, dErrors.New(dErrors.CodePayload, "no image provided")
	}

	slug := identity.Slugify(req.Enrollment.Profile.FirstName, req.Enrollment.Profile.LastName, req.Enrollment.Email)
	rec := identity.Record{
		Name:        req.Enrollment.DisplayName(),
		SampleCount: len(usable),
		Profile:     req.Enrollment.Profile,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment store")
	}

	if s.cache != nil {
		if _, err := s.samples.Replace(slug, usable); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist face samples")
		}
		rec.Slug = slug
	} else {
		rec.Signature = matcher.Sum(usable[0])
	}

	records[req.Enrollment.Email] = rec
	if err := s.store.Save(ctx, records); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save enrollment store")
	}

	if s.cache != nil {
		// Synchronous rebuild: the caller must not observe a window where
		// the identity is stored but not matchable.
		if err := s.cache.Rebuild(ctx); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rebuild encoding cache")
		}
	}

	s.metrics.ObserveRegister(time.Since(start), len(records))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "identity enrolled",
			"identity", req.Enrollment.Email,
			"slug", slug,
			"samples", len(usable),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return &RegisterResult{
		Status:      "stored",
		IdentityKey: req.Enrollment.Email,
		Profile:     req.Enrollment.Profile,
	}, nil
}

// VerifyResult is the node's vote on the wire.
type VerifyResult struct {
	Verified    bool              `json:"verified"`
	IdentityKey string            `json:"identityKey,omitempty"`
	Distance    *float64          `json:"distance,omitempty"`
	Profile     *identity.Profile `json:"profile,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// Verify matches a probe image against the local enrollments. Negative
// outcomes (no face, no enrollments, no match) are results, not errors.
func (s *Service) Verify(ctx context.Context, probe []byte) (*VerifyResult, error) {
	if len(probe) == 0 {
		return nil, dErrors.New(dErrors.CodePayload, "no image provided")
	}

	start := time.Now()
	result, err := s.match.Match(ctx, probe)
	if err != nil {
		s.metrics.ObserveMatch("error", time.Since(start))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "probe match failed")
	}

	if !result.Verified {
		s.metrics.ObserveMatch(string(result.Reason), time.Since(start))
		return &VerifyResult{Verified: false, Reason: string(result.Reason)}, nil
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment store")
	}
	rec, ok := records[result.IdentityKey]
	if !ok {
		// Matched an identity the store lost between match and load.
		s.metrics.ObserveMatch(string(matcher.ReasonNoMatch), time.Since(start))
		return &VerifyResult{Verified: false, Reason: string(matcher.ReasonNoMatch)}, nil
	}

	s.metrics.ObserveMatch("verified", time.Since(start))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "probe verified",
			"identity", result.IdentityKey,
			"distance", result.Distance,
		)
	}

	distance := result.Distance
	profile := rec.Profile
	return &VerifyResult{
		Verified:    true,
		IdentityKey: result.IdentityKey,
		Distance:    &distance,
		Profile:     &profile,
	}, nil
}

// LookupMatch is one classifier hit.
type LookupMatch struct {
	IdentityKey string           `json:"identityKey"`
	Name        string           `json:"name"`
	Profile     identity.Profile `json:"profile"`
	Probability *float64         `json:"probability,omitempty"`
}

// LookupResult lists every identity whose classification label equals the
// requested label exactly.
type LookupResult struct {
	Label   string        `json:"label"`
	Count   int           `json:"count"`
	Matches []LookupMatch `json:"matches"`
}

// ClassifierLookup scans the store for identities labeled with the given
// classifier label. Case-sensitive, exact equality; an empty match list is a
// normal outcome.
func (s *Service) ClassifierLookup(ctx context.Context, label string) (*LookupResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "classifier label required")
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment store")
	}

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	matches := make([]LookupMatch, 0)
	for _, key := range keys {
		rec := records[key]
		cls := rec.Profile.Classification
		if strings.TrimSpace(cls.Label()) != label {
			continue
		}
		m := LookupMatch{IdentityKey: key, Name: rec.Name, Profile: rec.Profile}
		if p, ok := cls.Probability(); ok {
			m.Probability = &p
		}
		matches = append(matches, m)
	}

	return &LookupResult{Label: label, Count: len(matches), Matches: matches}, nil
}

func usableSamples(payloads [][]byte) [][]byte {
	usable := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		if len(p) > 0 {
			usable = append(usable, p)
		}
	}
	return usable
}
