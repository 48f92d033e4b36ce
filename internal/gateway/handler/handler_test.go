package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphera/internal/gateway"
	"ciphera/internal/sessiontoken"
	dErrors "ciphera/pkg/domain-errors"
)

type fakeService struct {
	register func(ctx context.Context, req gateway.RegisterRequest) (*gateway.RegisterResult, error)
	verify   func(ctx context.Context, probe []byte) (*gateway.VerifyResult, error)
	lookup   func(ctx context.Context, label string) (*gateway.ClassifierResult, error)
}

func (f *fakeService) Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.RegisterResult, error) {
	return f.register(ctx, req)
}

func (f *fakeService) Verify(ctx context.Context, probe []byte) (*gateway.VerifyResult, error) {
	return f.verify(ctx, probe)
}

func (f *fakeService) ClassifierLookup(ctx context.Context, label string) (*gateway.ClassifierResult, error) {
	return f.lookup(ctx, label)
}

func testRouter(svc Service, issuer *sessiontoken.Issuer) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(New(svc, issuer, logger))
}

func TestRegisterParsesFormAndSamples(t *testing.T) {
	var got gateway.RegisterRequest
	svc := &fakeService{
		register: func(_ context.Context, req gateway.RegisterRequest) (*gateway.RegisterResult, error) {
			got = req
			return &gateway.RegisterResult{Message: "Registration broadcast complete."}, nil
		},
	}
	router := testRouter(svc, sessiontoken.NewIssuer("secret", time.Hour))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("email", "jane@example.com"))
	require.NoError(t, w.WriteField("first_name", "Jane"))
	for i := 0; i < 2; i++ {
		part, err := w.CreateFormFile("face_samples", "s.jpg")
		require.NoError(t, err)
		_, err = part.Write([]byte("img"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/register", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jane@example.com", got.Enrollment.Email)
	assert.Len(t, got.Samples, 2)
}

func TestRegisterBroadcastFailureIs502(t *testing.T) {
	svc := &fakeService{
		register: func(context.Context, gateway.RegisterRequest) (*gateway.RegisterResult, error) {
			return nil, dErrors.New(dErrors.CodeBroadcastFailed, "no verifier node accepted the registration")
		},
	}
	router := testRouter(svc, sessiontoken.NewIssuer("secret", time.Hour))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("email", "jane@example.com"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/register", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSignInRejectionIsStill200(t *testing.T) {
	svc := &fakeService{
		verify: func(context.Context, []byte) (*gateway.VerifyResult, error) {
			return &gateway.VerifyResult{Authenticated: false}, nil
		},
	}
	router := testRouter(svc, sessiontoken.NewIssuer("secret", time.Hour))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "probe.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("probe"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/signin", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result gateway.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Authenticated)
}

func TestClassifierSignIn(t *testing.T) {
	svc := &fakeService{
		lookup: func(_ context.Context, label string) (*gateway.ClassifierResult, error) {
			return &gateway.ClassifierResult{Label: label, Count: 0, Matches: []gateway.ClassifierMatch{}}, nil
		},
	}
	router := testRouter(svc, sessiontoken.NewIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/api/signin/classifier", bytes.NewBufferString(`{"label":"vip"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result gateway.ClassifierResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "vip", result.Label)
}

func TestSessionIntrospection(t *testing.T) {
	issuer := sessiontoken.NewIssuer("secret", time.Hour)
	router := testRouter(&fakeService{}, issuer)

	token, err := issuer.Issue(time.Now(), "jane@example.com", []string{"node-1"}, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var claims sessiontoken.Claims
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
	assert.Equal(t, "jane@example.com", claims.Subject)
	assert.Equal(t, []string{"node-1"}, claims.Nodes)
}

func TestSessionWithoutTokenIs401(t *testing.T) {
	router := testRouter(&fakeService{}, sessiontoken.NewIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionWithBadTokenIs401(t *testing.T) {
	router := testRouter(&fakeService{}, sessiontoken.NewIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
