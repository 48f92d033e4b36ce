// Package form parses the multipart enrollment and probe uploads shared by
// the gateway and node HTTP APIs. Clients send samples as file parts under
// face_samples (or face_samples[]), a single file part, or base64 data URLs
// in plain form values; all variants are accepted.
package form

import (
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"ciphera/internal/identity"
	dErrors "ciphera/pkg/domain-errors"
)

const maxUploadMemory = 32 << 20

var sampleKeys = []string{"face_samples", "face_samples[]"}

// Parse reads the request's multipart body into memory.
func Parse(r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return dErrors.Wrap(err, dErrors.CodePayload, "invalid multipart form")
	}
	return nil
}

// Enrollment builds an enrollment from the form's profile fields. Parse must
// have succeeded first.
func Enrollment(r *http.Request) identity.Enrollment {
	e := identity.Enrollment{
		Email: r.FormValue("email"),
		Name:  r.FormValue("name"),
		Profile: identity.Profile{
			FirstName:    r.FormValue("first_name"),
			MiddleName:   r.FormValue("middle_name"),
			LastName:     r.FormValue("last_name"),
			Phone:        r.FormValue("phone"),
			AddressLine1: r.FormValue("address_line1"),
			AddressLine2: r.FormValue("address_line2"),
			City:         r.FormValue("city"),
			State:        r.FormValue("state"),
			PostalCode:   r.FormValue("postal_code"),
			Country:      r.FormValue("country"),
		},
	}
	if raw := strings.TrimSpace(r.FormValue("classification")); raw != "" {
		e.Profile.Classification = identity.ParseClassification(raw)
	}
	return e
}

// Samples collects the uploaded face samples. Unreadable or empty parts are
// skipped; deciding whether zero samples is an error belongs to the service.
func Samples(r *http.Request) [][]byte {
	if r.MultipartForm == nil {
		return nil
	}

	samples := make([][]byte, 0)
	for _, key := range sampleKeys {
		for _, header := range r.MultipartForm.File[key] {
			if data := readPart(header); len(data) > 0 {
				samples = append(samples, data)
			}
		}
	}
	if len(samples) == 0 {
		for _, header := range r.MultipartForm.File["file"] {
			if data := readPart(header); len(data) > 0 {
				samples = append(samples, data)
			}
		}
	}
	for _, key := range sampleKeys {
		for _, value := range r.MultipartForm.Value[key] {
			if data := decodeDataURL(value); len(data) > 0 {
				samples = append(samples, data)
			}
		}
	}
	return samples
}

// Probe reads the single probe image from the file part.
func Probe(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, dErrors.New(dErrors.CodePayload, "no image provided")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePayload, "read probe image")
	}
	return data, nil
}

func readPart(header *multipart.FileHeader) []byte {
	file, err := header.Open()
	if err != nil {
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil
	}
	return data
}

func decodeDataURL(value string) []byte {
	if !strings.HasPrefix(value, "data:") {
		return nil
	}
	comma := strings.IndexByte(value, ',')
	if comma < 0 {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(value[comma+1:])
	if err != nil {
		return nil
	}
	return data
}
