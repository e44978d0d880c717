// Package content talks to the remote content service: it fetches one-shot
// upload URLs, uploads label photos, and posts note metadata.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/services"
	"winecellar/internal/transport"
)

const (
	DefaultBaseURL = "https://skok-prod.appspot.com"

	uploadURLPath = "/dropbox/url"
	metadataPath  = "/winecellar/wine"

	// Form field and file part names expected by the upload handler.
	FieldRowID    = "rowId"
	FieldFile     = "file"
	ImageMIMEType = "image/jpeg"
)

// Doer sends HTTP requests. *transport.Executor satisfies it.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Client is the content service client.
type Client struct {
	baseURL  string
	doer     Doer
	location *time.Location
	logger   *slog.Logger
}

// NewClient constructs a client for baseURL. Metadata timezone offsets are
// computed in loc (time.Local when nil).
func NewClient(baseURL string, doer Doer, loc *time.Location, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "parse content base url", baseURL, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		doer:     doer,
		location: loc,
		logger:   logging.NewComponentLogger(logger, "content"),
	}, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type uploadURLResponse struct {
	URL string `json:"url"`
}

type uploadImageResponse struct {
	URI string `json:"uri"`
}

// UploadURL asks the service for a one-shot image upload URL.
func (c *Client) UploadURL(ctx context.Context) (string, error) {
	resp, err := c.doer.Do(ctx, transport.NewGet(c.baseURL+uploadURLPath))
	if err != nil {
		return "", err
	}
	var payload uploadURLResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "decode upload url", "", err)
	}
	uploadURL := strings.TrimSpace(payload.URL)
	if uploadURL == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "decode upload url", "",
			fmt.Errorf("%w: empty url", transport.ErrMalformedResponse))
	}
	return uploadURL, nil
}

// UploadImage posts the image at imagePath to uploadURL and returns the URI
// the service assigned to it.
func (c *Client) UploadImage(ctx context.Context, uploadURL string, noteID int64, imagePath string) (string, error) {
	form := transport.NewForm().
		AddField(FieldRowID, strconv.FormatInt(noteID, 10)).
		AddFile(FieldFile, imagePath, filepath.Base(imagePath), ImageMIMEType)

	resp, err := c.doer.Do(ctx, transport.NewMultipart(uploadURL, form))
	if err != nil {
		return "", err
	}
	var payload uploadImageResponse
	if err := resp.DecodeJSON(&payload); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "decode image uri", "", err)
	}
	uri := strings.TrimSpace(payload.URI)
	if uri == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "decode image uri", "",
			fmt.Errorf("%w: empty uri", transport.ErrMalformedResponse))
	}
	logging.WithContext(ctx, c.logger).Debug("image uploaded",
		logging.String("uri", uri),
		logging.Int("attempts", resp.Attempts),
	)
	return uri, nil
}

// UploadMetadata posts the note's full field set.
func (c *Client) UploadMetadata(ctx context.Context, note *notes.Note) error {
	if note == nil {
		return services.Wrap(services.ErrValidation, "", "upload metadata", "nil note", nil)
	}
	body, err := EncodeMetadata(BuildMetadata(note, c.location))
	if err != nil {
		return services.Wrap(services.ErrValidation, "", "encode metadata", "", err)
	}
	_, err = c.doer.Do(ctx, transport.NewRawJSON(c.baseURL+metadataPath, body))
	return err
}
