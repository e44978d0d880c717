package ocr_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winecellar/internal/ocr"
	"winecellar/internal/services"
	"winecellar/internal/transport"
)

type annotateBody struct {
	Requests []struct {
		Image struct {
			Content string `json:"content"`
		} `json:"image"`
		Features []struct {
			Type       string `json:"type"`
			MaxResults int    `json:"maxResults"`
		} `json:"features"`
	} `json:"requests"`
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, body annotateBody)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body annotateBody
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(endpoint string) *ocr.Client {
	return ocr.NewClient(ocr.Config{APIKey: "test-key", Endpoint: endpoint}, transport.NewExecutor(), nil)
}

func TestExtractConcatenatesDescriptions(t *testing.T) {
	payload := []byte("jpeg-bytes")
	server := newServer(t, func(w http.ResponseWriter, body annotateBody) {
		require.Len(t, body.Requests, 1)
		decoded, err := base64.StdEncoding.DecodeString(body.Requests[0].Image.Content)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
		require.Len(t, body.Requests[0].Features, 1)
		assert.Equal(t, "TEXT_DETECTION", body.Requests[0].Features[0].Type)
		assert.Equal(t, 1, body.Requests[0].Features[0].MaxResults)

		_, _ = io.WriteString(w, `{"responses":[{"textAnnotations":[{"description":"KENWOOD\n"},{"description":"2004"}]}]}`)
	})

	text, err := newClient(server.URL).Extract(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "KENWOOD\n2004", text)
}

func TestExtractNoAnnotationsIsEmpty(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ annotateBody) {
		_, _ = io.WriteString(w, `{"responses":[{}]}`)
	})
	text, err := newClient(server.URL).Extract(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractTextReturnsSentinelOnFailure(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter, _ annotateBody){
		"per image error": func(w http.ResponseWriter, _ annotateBody) {
			_, _ = io.WriteString(w, `{"responses":[{"error":{"code":3,"message":"bad image"}}]}`)
		},
		"server error": func(w http.ResponseWriter, _ annotateBody) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed": func(w http.ResponseWriter, _ annotateBody) {
			_, _ = io.WriteString(w, `not json`)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := newServer(t, handler)
			text := newClient(server.URL).ExtractText(context.Background(), []byte("x"))
			assert.Equal(t, ocr.FailureText, text)
			assert.True(t, ocr.IsFailure(text))
		})
	}
}

func TestExtractWithoutKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer server.Close()

	client := ocr.NewClient(ocr.Config{Endpoint: server.URL}, transport.NewExecutor(), nil)
	_, err := client.Extract(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ocr.ErrNoAPIKey)
	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.Zero(t, calls.Load())
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	assert.NoError(t, newClient(server.URL).HealthCheck(context.Background()))

	bad := ocr.NewClient(ocr.Config{APIKey: "wrong", Endpoint: server.URL}, transport.NewExecutor(), nil)
	assert.Error(t, bad.HealthCheck(context.Background()))
}

func TestPrepareImageReencodesAsJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: 80, B: 120, A: 255})
		}
	}
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, img))

	out, err := ocr.PrepareImage(&src, 50)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestPrepareImageRejectsGarbage(t *testing.T) {
	_, err := ocr.PrepareImage(bytes.NewReader([]byte("not an image")), 50)
	assert.Error(t, err)
}
