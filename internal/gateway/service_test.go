package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ciphera/internal/identity"
	"ciphera/internal/node"
	"ciphera/internal/sessiontoken"
	dErrors "ciphera/pkg/domain-errors"
)

type fakeClient struct {
	register func(ctx context.Context, e identity.Enrollment, samples [][]byte) (*node.RegisterResult, error)
	verify   func(ctx context.Context, probe []byte) (*node.VerifyResult, error)
	lookup   func(ctx context.Context, label string) (*node.LookupResult, error)
}

func (f *fakeClient) Register(ctx context.Context, e identity.Enrollment, samples [][]byte) (*node.RegisterResult, error) {
	return f.register(ctx, e, samples)
}

func (f *fakeClient) Verify(ctx context.Context, probe []byte) (*node.VerifyResult, error) {
	return f.verify(ctx, probe)
}

func (f *fakeClient) ClassifierLookup(ctx context.Context, label string) (*node.LookupResult, error) {
	return f.lookup(ctx, label)
}

func acceptingClient() *fakeClient {
	return &fakeClient{
		register: func(_ context.Context, e identity.Enrollment, _ [][]byte) (*node.RegisterResult, error) {
			return &node.RegisterResult{Status: "stored", IdentityKey: e.Email, Profile: e.Profile}, nil
		},
	}
}

func failingClient(err error) *fakeClient {
	return &fakeClient{
		register: func(context.Context, identity.Enrollment, [][]byte) (*node.RegisterResult, error) {
			return nil, err
		},
		verify: func(context.Context, []byte) (*node.VerifyResult, error) {
			return nil, err
		},
		lookup: func(context.Context, string) (*node.LookupResult, error) {
			return nil, err
		},
	}
}

func votingClient(verified bool, key string, distance float64, delay time.Duration) *fakeClient {
	return &fakeClient{
		verify: func(context.Context, []byte) (*node.VerifyResult, error) {
			time.Sleep(delay)
			if !verified {
				return &node.VerifyResult{Verified: false, Reason: "no_match"}, nil
			}
			d := distance
			return &node.VerifyResult{
				Verified:    true,
				IdentityKey: key,
				Distance:    &d,
				Profile:     &identity.Profile{FirstName: "Jane", City: "Springfield"},
			}, nil
		},
	}
}

func validEnrollment() identity.Enrollment {
	return identity.Enrollment{
		Email: "jane@example.com",
		Profile: identity.Profile{
			FirstName:    "Jane",
			LastName:     "Doe",
			Phone:        "555-0100",
			AddressLine1: "1 Main St",
			City:         "Springfield",
			PostalCode:   "12345",
			Country:      "US",
		},
	}
}

type GatewaySuite struct {
	suite.Suite
	issuer *sessiontoken.Issuer
	ctx    context.Context
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.issuer = sessiontoken.NewIssuer("test-secret", time.Hour)
	s.ctx = context.Background()
}

func (s *GatewaySuite) service(nodes ...Node) *Service {
	return New(nodes, Config{SamplesRequired: 2}, s.issuer, nil, nil)
}

func (s *GatewaySuite) samples(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i + 1)}
	}
	return out
}

func (s *GatewaySuite) TestRegisterSucceedsWithOneNodeStored() {
	svc := s.service(
		Node{Name: "node-1", Client: failingClient(errors.New("connection refused"))},
		Node{Name: "node-2", Client: acceptingClient()},
	)

	result, err := svc.Register(s.ctx, RegisterRequest{Enrollment: validEnrollment(), Samples: s.samples(2)})
	s.Require().NoError(err)
	s.Equal("Registration broadcast complete.", result.Message)
	s.Require().Len(result.Results, 2)
	s.Equal("error", result.Results[0].Status)
	s.Contains(result.Results[0].Error, "connection refused")
	s.Equal("stored", result.Results[1].Status)
	s.Equal("jane@example.com", result.Profile.Email)
	s.Equal("Jane Doe", result.Profile.Name)
	s.Equal("jane-doe-jane", result.Profile.FaceSlug)
	s.Equal(2, result.Profile.SampleCount)
}

func (s *GatewaySuite) TestRegisterAllNodesDownIsBroadcastFailure() {
	svc := s.service(
		Node{Name: "node-1", Client: failingClient(errors.New("down"))},
		Node{Name: "node-2", Client: failingClient(errors.New("down"))},
	)

	_, err := svc.Register(s.ctx, RegisterRequest{Enrollment: validEnrollment(), Samples: s.samples(2)})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBroadcastFailed))

	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Len(de.Details["results"], 2)
}

func (s *GatewaySuite) TestRegisterTooFewSamplesIsPayloadError() {
	svc := s.service(Node{Name: "node-1", Client: acceptingClient()})

	_, err := svc.Register(s.ctx, RegisterRequest{Enrollment: validEnrollment(), Samples: s.samples(1)})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePayload))

	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Equal(1, de.Details["received"])
}

func (s *GatewaySuite) TestRegisterTruncatesExtraSamples() {
	var got int
	client := &fakeClient{
		register: func(_ context.Context, e identity.Enrollment, samples [][]byte) (*node.RegisterResult, error) {
			got = len(samples)
			return &node.RegisterResult{Status: "stored", IdentityKey: e.Email}, nil
		},
	}
	svc := s.service(Node{Name: "node-1", Client: client})

	result, err := svc.Register(s.ctx, RegisterRequest{Enrollment: validEnrollment(), Samples: s.samples(5)})
	s.Require().NoError(err)
	s.Equal(2, got)
	s.Equal(2, result.Profile.SampleCount)
}

func (s *GatewaySuite) TestRegisterMissingFieldFailsBeforeBroadcast() {
	called := false
	client := &fakeClient{
		register: func(_ context.Context, e identity.Enrollment, _ [][]byte) (*node.RegisterResult, error) {
			called = true
			return &node.RegisterResult{Status: "stored"}, nil
		},
	}
	svc := s.service(Node{Name: "node-1", Client: client})

	e := validEnrollment()
	e.Profile.City = ""
	_, err := svc.Register(s.ctx, RegisterRequest{Enrollment: e, Samples: s.samples(2)})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.False(called)
}

func (s *GatewaySuite) TestVerifyMajorityAuthenticates() {
	svc := s.service(
		Node{Name: "node-1", Client: votingClient(true, "jane@example.com", 0.2, 0)},
		Node{Name: "node-2", Client: votingClient(true, "jane@example.com", 0.3, 0)},
		Node{Name: "node-3", Client: votingClient(false, "", 0, 0)},
	)

	result, err := svc.Verify(s.ctx, []byte("probe"))
	s.Require().NoError(err)
	s.True(result.Authenticated)
	s.Equal("jane@example.com", result.Subject)
	s.Require().Len(result.Votes, 3)

	claims, err := s.issuer.Validate(result.Token)
	s.Require().NoError(err)
	s.Equal("jane@example.com", claims.Subject)
	s.Equal([]string{"node-1", "node-2"}, claims.Nodes)
	s.Require().NotNil(claims.Metrics)
	s.Equal(2, claims.Metrics.PositiveVotes)
	s.Equal(2, claims.Metrics.RequiredMajority)
}

func (s *GatewaySuite) TestVerifyMinorityRejectsWithFullVoteList() {
	svc := s.service(
		Node{Name: "node-1", Client: votingClient(true, "jane@example.com", 0.2, 0)},
		Node{Name: "node-2", Client: votingClient(false, "", 0, 0)},
		Node{Name: "node-3", Client: votingClient(false, "", 0, 0)},
	)

	result, err := svc.Verify(s.ctx, []byte("probe"))
	s.Require().NoError(err)
	s.False(result.Authenticated)
	s.Empty(result.Token)
	s.Require().Len(result.Votes, 3)
	s.True(result.Votes[0].Verified)
	s.False(result.Votes[1].Verified)
}

func (s *GatewaySuite) TestVerifyUnreachableNodeIsNegativeVote() {
	svc := s.service(
		Node{Name: "node-1", Client: votingClient(true, "jane@example.com", 0.1, 0)},
		Node{Name: "node-2", Client: votingClient(true, "jane@example.com", 0.2, 0)},
		Node{Name: "node-3", Client: failingClient(errors.New("connection refused"))},
	)

	result, err := svc.Verify(s.ctx, []byte("probe"))
	s.Require().NoError(err)
	s.True(result.Authenticated)
	s.Require().Len(result.Votes, 3)
	s.False(result.Votes[2].Verified)
	s.Contains(result.Votes[2].Error, "connection refused")
}

func (s *GatewaySuite) TestVerifySubjectFollowsNodeOrderNotArrivalOrder() {
	// node-1 answers last but votes first in the configured order.
	svc := s.service(
		Node{Name: "node-1", Client: votingClient(true, "jane@example.com", 0.3, 30*time.Millisecond)},
		Node{Name: "node-2", Client: votingClient(true, "mallory@example.com", 0.1, 0)},
	)

	result, err := svc.Verify(s.ctx, []byte("probe"))
	s.Require().NoError(err)
	s.True(result.Authenticated)
	s.Equal("jane@example.com", result.Subject)
	s.Equal("node-1", result.Votes[0].Node)
	s.Equal("node-2", result.Votes[1].Node)
}

func (s *GatewaySuite) TestVerifyEmptyProbeIsPayloadError() {
	svc := s.service(Node{Name: "node-1", Client: votingClient(true, "jane@example.com", 0.1, 0)})

	_, err := svc.Verify(s.ctx, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePayload))
}

func lookupClient(matches ...node.LookupMatch) *fakeClient {
	return &fakeClient{
		lookup: func(_ context.Context, label string) (*node.LookupResult, error) {
			return &node.LookupResult{Label: label, Count: len(matches), Matches: matches}, nil
		},
	}
}

func (s *GatewaySuite) TestClassifierLookupMergesAcrossNodes() {
	jane := node.LookupMatch{IdentityKey: "jane@example.com", Name: "Jane Doe"}
	john := node.LookupMatch{IdentityKey: "john@example.com", Name: "John Roe"}

	svc := s.service(
		Node{Name: "node-1", Client: lookupClient(jane, john)},
		Node{Name: "node-2", Client: lookupClient(jane)},
		Node{Name: "node-3", Client: failingClient(errors.New("down"))},
	)

	result, err := svc.ClassifierLookup(s.ctx, " vip ")
	s.Require().NoError(err)
	s.Equal("vip", result.Label)
	s.Equal(2, result.Count)
	s.Require().Len(result.Matches, 2)
	s.Equal("jane@example.com", result.Matches[0].IdentityKey)
	s.Equal([]string{"node-1", "node-2"}, result.Matches[0].Sources)
	s.Equal([]string{"node-1"}, result.Matches[1].Sources)
}

func (s *GatewaySuite) TestClassifierLookupFallbackKeyPerNode() {
	// Matches without an identity key stay distinct per node and name.
	svc := s.service(
		Node{Name: "node-1", Client: lookupClient(node.LookupMatch{Name: "Jane Doe"})},
		Node{Name: "node-2", Client: lookupClient(node.LookupMatch{Name: "Jane Doe"})},
	)

	result, err := svc.ClassifierLookup(s.ctx, "vip")
	s.Require().NoError(err)
	s.Equal(2, result.Count)
}

func (s *GatewaySuite) TestClassifierLookupAllNodesDownIsBroadcastFailure() {
	svc := s.service(
		Node{Name: "node-1", Client: failingClient(errors.New("down"))},
		Node{Name: "node-2", Client: failingClient(errors.New("down"))},
	)

	_, err := svc.ClassifierLookup(s.ctx, "vip")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBroadcastFailed))
}

func (s *GatewaySuite) TestClassifierLookupEmptyLabel() {
	svc := s.service(Node{Name: "node-1", Client: lookupClient()})

	_, err := svc.ClassifierLookup(s.ctx, "   ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
