// Package llm contains the vision provider clients. Both providers share the
// same call contract: an image reference in, a raw text response out, with
// throttling and failures reported as tagged outcomes rather than errors so
// the pipeline can decide on retry and fallback.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoAPIKey is returned at construction when a provider requires an API
// key and none is configured.
var ErrNoAPIKey = errors.New("llm: missing API key")

// OutcomeKind discriminates the variants of a provider call outcome.
type OutcomeKind int

const (
	// OutcomeSuccess carries the raw provider response text.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRateLimited means the provider throttled the call and the
	// client's retry budget is exhausted.
	OutcomeRateLimited
	// OutcomeFailure carries a non-throttling error.
	OutcomeFailure
)

// Outcome is the result of one provider call. It is consumed synchronously
// by the pipeline within a single retry/fallback cycle and never persisted.
type Outcome struct {
	Kind OutcomeKind
	Raw  string
	Err  error
}

// Success wraps a raw provider response. An empty response is still a
// success; the normalizer degrades it to a low-confidence default result.
func Success(raw string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Raw: raw}
}

// RateLimited marks a call that exhausted its throttling retry budget.
func RateLimited() Outcome {
	return Outcome{Kind: OutcomeRateLimited, Err: errors.New("provider rate limit exceeded, retries exhausted")}
}

// Failure wraps a non-throttling provider or transport error.
func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Analyzer can analyze a stored image and return a raw sustainability
// analysis. Implementations do not parse the response; that is the
// normalizer's job.
type Analyzer interface {
	Analyze(ctx context.Context, imagePath, originalName string) Outcome
	CheckHealth(ctx context.Context) error
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// mimeTypeFor infers a MIME type from the file extension. Unknown
// extensions default to image/jpeg.
func mimeTypeFor(path string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "image/jpeg"
}

// readImageBase64 reads the image file and returns its base64 encoding.
func readImageBase64(imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// readImageDataURI reads the image file and returns it as an embeddable
// base64 data URI with the MIME type inferred from the extension.
func readImageDataURI(imagePath string) (string, error) {
	b64, err := readImageBase64(imagePath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeTypeFor(imagePath), b64), nil
}
