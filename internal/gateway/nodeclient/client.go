// Package nodeclient implements the HTTP client side of the verifier node
// wire protocol: multipart register and verify uploads, JSON classifier
// lookups. Field names on the wire are part of the protocol and must not
// change.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"ciphera/internal/identity"
	"ciphera/internal/node"
	dErrors "ciphera/pkg/domain-errors"
)

// Client talks to one verifier node. Call deadlines come from the caller's
// context; the gateway owns the per-node timeout.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a node client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Register uploads an enrollment with its face samples.
func (c *Client) Register(ctx context.Context, enrollment identity.Enrollment, samples [][]byte) (*node.RegisterResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"email":         enrollment.Email,
		"name":          enrollment.Name,
		"first_name":    enrollment.Profile.FirstName,
		"middle_name":   enrollment.Profile.MiddleName,
		"last_name":     enrollment.Profile.LastName,
		"phone":         enrollment.Profile.Phone,
		"address_line1": enrollment.Profile.AddressLine1,
		"address_line2": enrollment.Profile.AddressLine2,
		"city":          enrollment.Profile.City,
		"state":         enrollment.Profile.State,
		"postal_code":   enrollment.Profile.PostalCode,
		"country":       enrollment.Profile.Country,
	}
	if enrollment.Profile.Classification != nil {
		raw, err := json.Marshal(enrollment.Profile.Classification)
		if err != nil {
			return nil, fmt.Errorf("encode classification: %w", err)
		}
		fields["classification"] = string(raw)
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	for i, sample := range samples {
		part, err := writer.CreateFormFile("face_samples", fmt.Sprintf("sample_%02d.jpg", i))
		if err != nil {
			return nil, fmt.Errorf("create sample part: %w", err)
		}
		if _, err := part.Write(sample); err != nil {
			return nil, fmt.Errorf("write sample part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var result node.RegisterResult
	if err := c.postMultipart(ctx, "/register", writer.FormDataContentType(), &buf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify uploads a probe image and returns the node's vote.
func (c *Client) Verify(ctx context.Context, probe []byte) (*node.VerifyResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "probe.jpg")
	if err != nil {
		return nil, fmt.Errorf("create probe part: %w", err)
	}
	if _, err := part.Write(probe); err != nil {
		return nil, fmt.Errorf("write probe part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var result node.VerifyResult
	if err := c.postMultipart(ctx, "/verify-face", writer.FormDataContentType(), &buf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClassifierLookup asks the node for every identity carrying the label.
func (c *Client) ClassifierLookup(ctx context.Context, label string) (*node.LookupResult, error) {
	body, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return nil, fmt.Errorf("encode lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classifier-lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result node.LookupResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postMultipart(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build node request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, out)
}

// errorEnvelope mirrors the node's error response body.
type errorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNodeUnavailable, "node unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope); decodeErr == nil && envelope.Error != "" {
			msg := envelope.Description
			if msg == "" {
				msg = envelope.Error
			}
			return dErrors.New(dErrors.Code(envelope.Error), msg)
		}
		return dErrors.New(dErrors.CodeNodeUnavailable, fmt.Sprintf("node returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNodeUnavailable, "decode node response")
	}
	return nil
}
