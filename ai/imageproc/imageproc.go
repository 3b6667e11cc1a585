// Package imageproc prepares item and query images for the embedding
// provider: remote images are fetched, downscaled, and re-encoded so the
// provider payload stays bounded regardless of the original upload size.
package imageproc

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	// maxEdge is the longest edge after downscaling. CLIP-family models see
	// low-resolution crops anyway, so anything larger is wasted bandwidth.
	maxEdge = 512

	jpegQuality = 85

	// maxFetchBytes caps the response body read from a remote image URL.
	maxFetchBytes = 20 << 20
)

// Preparer turns an image reference into a provider-ready data URI.
type Preparer struct {
	client *http.Client
}

// NewPreparer creates a Preparer with the given fetch timeout.
func NewPreparer(timeout time.Duration) *Preparer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Preparer{
		client: &http.Client{Timeout: timeout},
	}
}

// Prepare resolves imageRef into a base64 JPEG data URI. Data URIs are
// passed through untouched; http(s) URLs are fetched and normalized.
func (p *Preparer) Prepare(ctx context.Context, imageRef string) (string, error) {
	if strings.HasPrefix(imageRef, "data:") {
		return imageRef, nil
	}
	if !strings.HasPrefix(imageRef, "http://") && !strings.HasPrefix(imageRef, "https://") {
		return "", errors.Errorf("unsupported image reference scheme: %s", schemeOf(imageRef))
	}

	raw, err := p.fetch(ctx, imageRef)
	if err != nil {
		return "", err
	}
	return Normalize(raw)
}

func (p *Preparer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build image request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image body")
	}
	return raw, nil
}

// Normalize decodes raw image bytes, downscales to fit maxEdge, and
// re-encodes as a base64 JPEG data URI.
func Normalize(raw []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", errors.Wrap(err, "failed to encode image")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func schemeOf(ref string) string {
	if i := strings.Index(ref, ":"); i > 0 {
		return ref[:i]
	}
	return "none"
}
