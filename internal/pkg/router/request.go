package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shandysiswandi/gosend/internal/pkg/goerror"
)

// Request wraps http.Request with helpers for inbound handlers.
type Request struct {
	// Request is the underlying http.Request.
	*http.Request
}

// DecodeBody decodes the JSON body into dst.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return goerror.NewInvalidFormat()
	}

	return nil
}

// ParseMultipart parses a multipart/form-data body keeping at most maxMemory
// bytes of file parts in memory.
func (r *Request) ParseMultipart(maxMemory int64) error {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		return goerror.NewInvalidFormat("Invalid request content-type")
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return goerror.NewInvalidFormat("Request body too large")
		}
		return goerror.NewInvalidFormat()
	}

	return nil
}

// GetForm returns the trimmed value of a parsed form field.
func (r *Request) GetForm(key string) string {
	return strings.TrimSpace(r.FormValue(key))
}

// ReadFormFile returns the client filename and content of the file field
// name. Content larger than limit bytes is rejected.
//
// ParseMultipart must be called first.
func (r *Request) ReadFormFile(name string, limit int64) (string, []byte, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, goerror.NewInvalidInput(nil, name, "No file selected")
	}
	if err != nil {
		return "", nil, goerror.NewInvalidFormat()
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", nil, goerror.NewInvalidFormat()
	}
	if int64(len(data)) > limit {
		return "", nil, goerror.NewInvalidInput(nil, name, "File is too large")
	}

	return header.Filename, data, nil
}
