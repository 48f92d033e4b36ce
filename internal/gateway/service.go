// Package gateway orchestrates the verifier-node fan-out: registration
// broadcasts, quorum-voted verification, and merged classifier lookups. The
// gateway holds no enrollment state of its own; every request is answered
// from the nodes' votes plus a signed session token.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ciphera/internal/gateway/metrics"
	"ciphera/internal/identity"
	"ciphera/internal/quorum"
	"ciphera/internal/sessiontoken"
	dErrors "ciphera/pkg/domain-errors"
)

const (
	// DefaultSamplesRequired is the enrollment sample minimum when none is
	// configured. Extra samples are truncated to this count.
	DefaultSamplesRequired = 3

	// DefaultNodeTimeout bounds each individual node call. A timed-out call
	// becomes a negative vote; it never fails the whole request.
	DefaultNodeTimeout = 10 * time.Second
)

// Config carries the gateway's tunables.
type Config struct {
	SamplesRequired int
	NodeTimeout     time.Duration
}

// Service fans requests out to the configured verifier nodes.
type Service struct {
	nodes           []Node
	samplesRequired int
	nodeTimeout     time.Duration
	issuer          *sessiontoken.Issuer
	logger          *slog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// New constructs a gateway service. Zero config fields fall back to defaults.
func New(nodes []Node, cfg Config, issuer *sessiontoken.Issuer, logger *slog.Logger, m *metrics.Metrics) *Service {
	if cfg.SamplesRequired <= 0 {
		cfg.SamplesRequired = DefaultSamplesRequired
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = DefaultNodeTimeout
	}
	return &Service{
		nodes:           nodes,
		samplesRequired: cfg.SamplesRequired,
		nodeTimeout:     cfg.NodeTimeout,
		issuer:          issuer,
		logger:          logger,
		metrics:         m,
		now:             time.Now,
	}
}

// RegisterRequest carries an enrollment and its raw face samples.
type RegisterRequest struct {
	Enrollment identity.Enrollment
	Samples    [][]byte
}

// Register validates the enrollment and broadcasts it to every node in
// parallel. The broadcast succeeds if at least one node stores the identity;
// per-node failures are reported in the result list.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Enrollment.Normalize()
	if err := req.Enrollment.Validate(); err != nil {
		return nil, err
	}

	usable := make([][]byte, 0, len(req.Samples))
	for _, sample := range req.Samples {
		if len(sample) > 0 {
			usable = append(usable, sample)
		}
	}
	if len(usable) < s.samplesRequired {
		return nil, dErrors.New(dErrors.CodePayload,
			fmt.Sprintf("expected at least %d face samples, received %d", s.samplesRequired, len(usable))).
			WithDetails("required", s.samplesRequired).
			WithDetails("received", len(usable))
	}
	usable = usable[:s.samplesRequired]

	results := make([]BroadcastResult, len(s.nodes))
	g, _ := errgroup.WithContext(ctx)
	for i, n := range s.nodes {
		i, n := i, n
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
			defer cancel()

			start := time.Now()
			res, err := n.Client.Register(callCtx, req.Enrollment, usable)
			s.metrics.ObserveNodeCall(n.Name, "register", time.Since(start))

			if err != nil {
				s.metrics.IncrementNodeError(n.Name, "register")
				if s.logger != nil {
					s.logger.WarnContext(ctx, "node registration failed",
						"node", n.Name,
						"identity", req.Enrollment.Email,
						"error", err,
					)
				}
				results[i] = BroadcastResult{Node: n.Name, Status: "error", Error: err.Error()}
				return nil
			}
			results[i] = BroadcastResult{Node: n.Name, Status: res.Status, IdentityKey: res.IdentityKey}
			return nil
		})
	}
	_ = g.Wait()

	stored := 0
	for _, r := range results {
		if r.Status == "stored" {
			stored++
		}
	}
	if stored == 0 {
		s.metrics.IncrementRegistration("broadcast_failed")
		return nil, dErrors.New(dErrors.CodeBroadcastFailed, "no verifier node accepted the registration").
			WithDetails("results", results)
	}

	s.metrics.IncrementRegistration("stored")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "registration broadcast complete",
			"identity", req.Enrollment.Email,
			"stored", stored,
			"nodes", len(s.nodes),
		)
	}

	return &RegisterResult{
		Message: "Registration broadcast complete.",
		Results: results,
		Profile: RegisteredProfile{
			Name:    req.Enrollment.DisplayName(),
			Email:   req.Enrollment.Email,
			Profile: req.Enrollment.Profile,
			FaceSlug: identity.Slugify(
				req.Enrollment.Profile.FirstName,
				req.Enrollment.Profile.LastName,
				req.Enrollment.Email,
			),
			SampleCount: len(usable),
		},
	}, nil
}

// Verify broadcasts the probe to every node, waits for all votes to settle,
// and applies the strict-majority quorum rule. Votes land in configured node
// order, which keeps the first-positive-vote subject deterministic.
func (s *Service) Verify(ctx context.Context, probe []byte) (*VerifyResult, error) {
	if len(probe) == 0 {
		return nil, dErrors.New(dErrors.CodePayload, "no image provided")
	}

	votes := make([]quorum.Vote, len(s.nodes))
	g, _ := errgroup.WithContext(ctx)
	for i, n := range s.nodes {
		i, n := i, n
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
			defer cancel()

			start := time.Now()
			res, err := n.Client.Verify(callCtx, probe)
			s.metrics.ObserveNodeCall(n.Name, "verify", time.Since(start))

			if err != nil {
				// An unreachable node is a negative vote, never a request
				// failure.
				s.metrics.IncrementNodeError(n.Name, "verify")
				if s.logger != nil {
					s.logger.WarnContext(ctx, "node verification failed",
						"node", n.Name,
						"error", err,
					)
				}
				votes[i] = quorum.Vote{Node: n.Name, Error: err.Error()}
				return nil
			}
			votes[i] = quorum.Vote{
				Node:        n.Name,
				Verified:    res.Verified,
				IdentityKey: res.IdentityKey,
				Distance:    res.Distance,
				Profile:     res.Profile,
				Reason:      res.Reason,
			}
			return nil
		})
	}
	_ = g.Wait()

	decision := quorum.Decide(votes, len(s.nodes))

	if len(decision.ConflictingIdentities) > 0 {
		s.metrics.AddIdentityConflicts(len(decision.ConflictingIdentities))
		if s.logger != nil {
			s.logger.WarnContext(ctx, "positive votes disagree on identity",
				"subject", decision.Subject,
				"conflicting", decision.ConflictingIdentities,
			)
		}
	}

	if !decision.Authenticated {
		s.metrics.IncrementQuorum("rejected")
		if s.logger != nil {
			s.logger.InfoContext(ctx, "verification rejected",
				"positive_votes", decision.PositiveVotes,
				"required_majority", decision.RequiredMajority,
			)
		}
		return &VerifyResult{Authenticated: false, Votes: votes}, nil
	}

	token, err := s.issuer.Issue(s.now(), decision.Subject, decision.Nodes, decision.Profile, decision.Metrics)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementQuorum("authenticated")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "verification authenticated",
			"identity", decision.Subject,
			"positive_votes", decision.PositiveVotes,
			"required_majority", decision.RequiredMajority,
		)
	}

	return &VerifyResult{
		Authenticated: true,
		Subject:       decision.Subject,
		Token:         token,
		Votes:         votes,
		Profile:       decision.Profile,
		Metrics:       decision.Metrics,
	}, nil
}

// ClassifierLookup fans the label out to every node and merges the matches.
// Identities reported by several nodes collapse into one match listing each
// reporting node as a source.
func (s *Service) ClassifierLookup(ctx context.Context, label string) (*ClassifierResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "classifier label required")
	}

	type nodeLookup struct {
		matches []ClassifierMatch
		err     error
	}
	lookups := make([]nodeLookup, len(s.nodes))

	g, _ := errgroup.WithContext(ctx)
	for i, n := range s.nodes {
		i, n := i, n
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.nodeTimeout)
			defer cancel()

			start := time.Now()
			res, err := n.Client.ClassifierLookup(callCtx, label)
			s.metrics.ObserveNodeCall(n.Name, "classifier_lookup", time.Since(start))

			if err != nil {
				s.metrics.IncrementNodeError(n.Name, "classifier_lookup")
				if s.logger != nil {
					s.logger.WarnContext(ctx, "node classifier lookup failed",
						"node", n.Name,
						"label", label,
						"error", err,
					)
				}
				lookups[i].err = err
				return nil
			}
			for _, m := range res.Matches {
				lookups[i].matches = append(lookups[i].matches, ClassifierMatch{
					IdentityKey: m.IdentityKey,
					Name:        m.Name,
					Profile:     m.Profile,
					Probability: m.Probability,
					Sources:     []string{n.Name},
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	merged := make([]ClassifierMatch, 0)
	index := make(map[string]int)
	for i, lookup := range lookups {
		if lookup.err != nil {
			failed++
			continue
		}
		for _, m := range lookup.matches {
			key := m.IdentityKey
			if key == "" {
				key = s.nodes[i].Name + ":" + m.Name
			}
			if at, ok := index[key]; ok {
				merged[at].Sources = append(merged[at].Sources, m.Sources...)
				continue
			}
			index[key] = len(merged)
			merged = append(merged, m)
		}
	}

	if failed == len(s.nodes) {
		return nil, dErrors.New(dErrors.CodeBroadcastFailed, "no verifier node answered the classifier lookup")
	}

	return &ClassifierResult{Label: label, Count: len(merged), Matches: merged}, nil
}
