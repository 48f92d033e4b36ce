package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultExtractorTimeout = 30 * time.Second

// HTTPClient calls an embedding extraction service over HTTP. The service
// accepts a multipart image upload and returns every face embedding it found.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an extractor client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultExtractorTimeout},
	}
}

type embeddingsResponse struct {
	Embeddings []Vector `json:"embeddings"`
}

// Embeddings posts the image to the extraction service and returns the
// embeddings of every detected face. A response with zero embeddings is a
// normal outcome, not an error.
func (c *HTTPClient) Embeddings(ctx context.Context, image []byte) ([]Vector, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "probe.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", &buf)
	if err != nil {
		return nil, fmt.Errorf("build extractor request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	return decoded.Embeddings, nil
}
