// Package ocr extracts label text from photos using the Cloud Vision
// TEXT_DETECTION feature.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/url"
	"strings"

	// Register decoders for photos imported from other cameras.
	_ "image/gif"
	_ "image/png"

	"winecellar/internal/logging"
	"winecellar/internal/services"
	"winecellar/internal/transport"
)

const (
	// FailureText is the text stored in place of an extract when recognition fails.
	FailureText = "Cloud Vision API request failed. Check logs for details."

	DefaultEndpoint    = "https://vision.googleapis.com/v1/images:annotate"
	DefaultJPEGQuality = 50

	featureTextDetection = "TEXT_DETECTION"
)

// ErrNoAPIKey is returned when recognition runs without credentials.
var ErrNoAPIKey = errors.New("ocr api key not configured")

// Config describes the recognition endpoint.
type Config struct {
	APIKey      string
	Endpoint    string
	JPEGQuality int
}

// Doer sends HTTP requests. *transport.Executor satisfies it.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Client calls the recognition endpoint.
type Client struct {
	cfg    Config
	doer   Doer
	logger *slog.Logger
}

// NewClient constructs a client. A nil logger discards output.
func NewClient(cfg Config, doer Doer, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg, doer: doer, logger: logging.NewComponentLogger(logger, "ocr")}
}

// JPEGQuality reports the quality used by PrepareImage callers.
func (c *Client) JPEGQuality() int {
	return c.cfg.JPEGQuality
}

// ExtractText returns the recognized text, or FailureText when any part of
// the request fails. The failure is logged.
func (c *Client) ExtractText(ctx context.Context, jpegData []byte) string {
	text, err := c.Extract(ctx, jpegData)
	if err != nil {
		logging.WithContext(ctx, c.logger).Warn("text recognition failed",
			logging.String(logging.FieldEventType, "ocr_failed"),
			logging.String(logging.FieldErrorHint, "check the vision api key and quota"),
			logging.String(logging.FieldImpact, "note is stored without a text extract"),
			logging.Error(err),
		)
		return FailureText
	}
	return text
}

// Extract sends jpegData for text detection and concatenates the description
// of every annotation in the first image result.
func (c *Client) Extract(ctx context.Context, jpegData []byte) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "ocr", "extract", "", ErrNoAPIKey)
	}
	if len(jpegData) == 0 {
		return "", services.Wrap(services.ErrValidation, "ocr", "extract", "empty image", nil)
	}
	endpoint, err := c.requestURL()
	if err != nil {
		return "", err
	}

	req, err := transport.NewJSON(endpoint, newAnnotateRequest(jpegData))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ocr", "encode request", "", err)
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return "", err
	}

	var payload annotateResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "ocr", "decode response", "", err)
	}
	return payload.text()
}

// HealthCheck reports whether recognition can run: a key must be configured
// and the endpoint must answer.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrNoAPIKey
	}
	endpoint, err := c.requestURL()
	if err != nil {
		return err
	}
	// An empty request list is rejected with 400 by a live endpoint; any HTTP
	// answer proves reachability and any 401/403 proves a bad key.
	req, err := transport.NewJSON(endpoint, annotateRequest{Requests: []imageRequest{}})
	if err != nil {
		return err
	}
	_, err = c.doer.Do(ctx, req)
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("vision api rejected key: status %d", statusErr.StatusCode)
		default:
			return nil
		}
	}
	return err
}

func (c *Client) requestURL() (string, error) {
	parsed, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "ocr", "parse endpoint", c.cfg.Endpoint, err)
	}
	query := parsed.Query()
	query.Set("key", c.cfg.APIKey)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// IsFailure reports whether text is the recognition failure sentinel.
func IsFailure(text string) bool {
	return text == FailureText
}

// PrepareImage decodes any supported image and re-encodes it as JPEG at the
// given quality.
func PrepareImage(r io.Reader, quality int) ([]byte, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return EncodeJPEG(img, quality)
}

// EncodeJPEG encodes img at quality, falling back to DefaultJPEGQuality for
// out-of-range values.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

func newAnnotateRequest(jpegData []byte) annotateRequest {
	return annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(jpegData)},
		Features: []feature{{Type: featureTextDetection, MaxResults: 1}},
	}}}
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	TextAnnotations []textAnnotation `json:"textAnnotations"`
	Error           *apiStatus       `json:"error,omitempty"`
}

type textAnnotation struct {
	Description string `json:"description"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r annotateResponse) text() (string, error) {
	if len(r.Responses) == 0 {
		return "", nil
	}
	first := r.Responses[0]
	if first.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "ocr", "annotate",
			fmt.Sprintf("code %d", first.Error.Code), errors.New(first.Error.Message))
	}
	var b strings.Builder
	for _, annotation := range first.TextAnnotations {
		b.WriteString(annotation.Description)
	}
	return b.String(), nil
}
