package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winecellar/internal/backoff"
	"winecellar/internal/config"
	"winecellar/internal/connectivity"
	"winecellar/internal/content"
	"winecellar/internal/notes"
	"winecellar/internal/ocr"
	"winecellar/internal/pipeline"
	"winecellar/internal/services"
	"winecellar/internal/testsupport"
	"winecellar/internal/transport"
)

// fakeService emulates the three content service endpoints.
type fakeService struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	urlStatuses    []int
	uploadStatus   int
	metadataStatus int
	urlCalls       int
	uploadCalls    int
	metadataBodies [][]byte
	uploadRowIDs   []string
	uri            string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{t: t, uploadStatus: http.StatusOK, metadataStatus: http.StatusOK, uri: "https://cdn.example/label.jpg"}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /dropbox/url", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.urlCalls++
		status := http.StatusOK
		if len(f.urlStatuses) > 0 {
			status = f.urlStatuses[0]
			f.urlStatuses = f.urlStatuses[1:]
		}
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = io.WriteString(w, `{"url":"`+f.server.URL+`/upload"}`)
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.uploadCalls++
		f.uploadRowIDs = append(f.uploadRowIDs, r.FormValue("rowId"))
		status, uri := f.uploadStatus, f.uri
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = io.WriteString(w, `{"uri":"`+uri+`"}`)
	})
	mux.HandleFunc("POST /winecellar/wine", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.metadataBodies = append(f.metadataBodies, body)
		status := f.metadataStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) snapshot() (urlCalls, uploadCalls int, metadata [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urlCalls, f.uploadCalls, append([][]byte(nil), f.metadataBodies...)
}

type fakeRecognizer struct {
	text  string
	calls int
}

func (r *fakeRecognizer) ExtractText(_ context.Context, jpeg []byte) string {
	r.calls++
	if len(jpeg) == 0 {
		return ocr.FailureText
	}
	return r.text
}

type harness struct {
	cfg     *config.Config
	store   *notes.Store
	service *fakeService
	sleeps  []time.Duration
	mu      sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{service: newFakeService(t)}
	h.cfg = testsupport.NewConfig(t, testsupport.WithBaseURL(h.service.server.URL))
	h.store = testsupport.MustOpenStore(t, h.cfg)
	return h
}

func (h *harness) sleep(_ context.Context, d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sleeps = append(h.sleeps, d)
	return nil
}

func (h *harness) pipeline(t *testing.T, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	exec := transport.NewExecutor(
		transport.WithPolicy(backoff.DefaultPolicy()),
		transport.WithSleeper(h.sleep),
		transport.WithRand(func() float64 { return 0.5 }),
	)
	client, err := content.NewClient(h.service.server.URL, exec, time.UTC, nil)
	require.NoError(t, err)
	base := []pipeline.Option{
		pipeline.WithImagesDir(h.cfg.ImagesDir()),
		pipeline.WithConnectivity(connectivity.CheckerFunc(func(context.Context) bool { return true })),
	}
	return pipeline.New(h.store, client, append(base, opts...)...)
}

func (h *harness) capture(t *testing.T, name string) pipeline.Capture {
	t.Helper()
	image := filepath.Join(h.cfg.ImagesDir(), name+".jpg")
	thumb := filepath.Join(h.cfg.ThumbsDir(), name+".jpg")
	testsupport.WriteJPEG(t, image, 64, 48)
	testsupport.WriteJPEG(t, thumb, 32, 32)
	return pipeline.Capture{Wine: "cabernet sauvignon", Rating: "4.0", Notes: "dark fruit", ImagePath: image, ThumbnailPath: thumb}
}

func TestProcessSyncsNewCapture(t *testing.T) {
	h := newHarness(t)
	recognizer := &fakeRecognizer{text: "KENWOOD 2004"}
	p := h.pipeline(t, pipeline.WithRecognizer(recognizer))

	result := p.Process(context.Background(), h.capture(t, "a1"))
	require.NoError(t, result.Err)
	assert.True(t, result.Synced())
	assert.Equal(t, pipeline.StateSynced, result.Reached)
	assert.Equal(t, pipeline.FailedNone, result.FailedStage)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, 1, recognizer.calls)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Equal(t, "Cabernet Sauvignon", note.Wine)
	assert.Equal(t, "KENWOOD 2004", note.TextExtract)
	assert.Equal(t, "a1.jpg", note.PictureFileName)
	assert.Equal(t, h.service.uri, note.RemoteURI)
	assert.Equal(t, result.RemoteURI, note.RemoteURI)
	assert.Equal(t, notes.SyncSynced, note.SyncState)

	_, uploads, metadata := h.service.snapshot()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, []string{strconv.FormatInt(note.ID, 10)}, h.service.uploadRowIDs)
	require.Len(t, metadata, 1)
	var posted content.Metadata
	require.NoError(t, json.Unmarshal(metadata[0], &posted))
	assert.Equal(t, note.RemoteURI, posted.URI)
	assert.Equal(t, note.ID, posted.RowID)
	assert.Equal(t, note.UpdatedAtMs(), posted.TimeUpdatedMs)
}

func TestProcessStoresEmptyExtractWhenRecognitionFails(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t, pipeline.WithRecognizer(&fakeRecognizer{text: ocr.FailureText}))

	result := p.Process(context.Background(), h.capture(t, "a2"))
	require.True(t, result.Synced(), "result: %+v", result)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Empty(t, note.TextExtract)
}

func TestUploadURLRetriesServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.service.urlStatuses = []int{503, 503, 503}
	p := h.pipeline(t)

	result := p.Process(context.Background(), h.capture(t, "b1"))
	require.True(t, result.Synced(), "result: %+v", result)

	urlCalls, _, _ := h.service.snapshot()
	assert.Equal(t, 4, urlCalls)
	require.Len(t, h.sleeps, 3)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}, h.sleeps)
}

func TestImageUploadFailureStopsBeforeMetadata(t *testing.T) {
	h := newHarness(t)
	h.service.uploadStatus = http.StatusInternalServerError
	p := h.pipeline(t)

	result := p.Process(context.Background(), h.capture(t, "c1"))
	assert.Equal(t, pipeline.StateFailed, result.State)
	assert.Equal(t, pipeline.FailedImageUpload, result.FailedStage)
	assert.Equal(t, pipeline.StateURLFetched, result.Reached)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, result.Err, &stageErr)
	assert.Equal(t, pipeline.FailedImageUpload, stageErr.Stage)
	var statusErr *transport.StatusError
	require.ErrorAs(t, result.Err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Empty(t, note.RemoteURI)
	assert.Equal(t, notes.SyncFailed, note.SyncState)
	assert.Equal(t, string(pipeline.FailedImageUpload), note.SyncStage)

	_, uploads, metadata := h.service.snapshot()
	assert.Equal(t, 1, uploads)
	assert.Empty(t, metadata)
}

func TestMetadataFailureKeepsRemoteURI(t *testing.T) {
	h := newHarness(t)
	h.service.metadataStatus = http.StatusBadRequest
	p := h.pipeline(t)

	result := p.Process(context.Background(), h.capture(t, "c2"))
	assert.Equal(t, pipeline.FailedMetadataUpload, result.FailedStage)
	assert.Equal(t, pipeline.StateImageUploaded, result.Reached)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Equal(t, h.service.uri, note.RemoteURI)

	h.service.mu.Lock()
	h.service.metadataStatus = http.StatusOK
	h.service.mu.Unlock()

	retry := p.UploadMetadata(context.Background(), result.NoteID)
	require.True(t, retry.Synced(), "retry: %+v", retry)
	_, uploads, metadata := h.service.snapshot()
	assert.Equal(t, 1, uploads, "metadata retry must not re-upload the image")
	assert.Len(t, metadata, 2)
}

func TestDisconnectedNetworkFailsBeforeAnyRequest(t *testing.T) {
	h := newHarness(t)
	var checks int
	p := h.pipeline(t, pipeline.WithConnectivity(
		connectivity.CheckerFunc(func(context.Context) bool { checks++; return false }),
		connectivity.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	))

	result := p.Process(context.Background(), h.capture(t, "d1"))
	assert.Equal(t, pipeline.FailedConnectivity, result.FailedStage)
	assert.Equal(t, pipeline.StateLocalPersisted, result.Reached)
	assert.ErrorIs(t, result.Err, services.ErrConnectivity)
	assert.Equal(t, connectivity.DefaultMaxAttempts, checks)

	urlCalls, _, _ := h.service.snapshot()
	assert.Zero(t, urlCalls)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Empty(t, note.RemoteURI)
}

func TestResyncPostsSameMetadataApartFromUpdatedTime(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(t)

	first := p.Process(context.Background(), h.capture(t, "e1"))
	require.True(t, first.Synced())
	time.Sleep(5 * time.Millisecond)
	second := p.Resync(context.Background(), first.NoteID)
	require.True(t, second.Synced(), "second: %+v", second)
	assert.Equal(t, first.NoteID, second.NoteID)

	_, uploads, metadata := h.service.snapshot()
	assert.Equal(t, 2, uploads)
	require.Len(t, metadata, 2)

	decode := func(raw []byte) map[string]any {
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		delete(out, "timeUpdatedMs")
		return out
	}
	assert.Equal(t, decode(metadata[0]), decode(metadata[1]))
}

func TestResyncUnknownNoteIsPersistFailure(t *testing.T) {
	h := newHarness(t)
	result := h.pipeline(t).Resync(context.Background(), 4242)
	assert.Equal(t, pipeline.FailedPersist, result.FailedStage)
	assert.ErrorIs(t, result.Err, notes.ErrNotFound)
}

func TestUploadMetadataRequiresUploadedImage(t *testing.T) {
	h := newHarness(t)
	n := testsupport.NewNote(t, h.store, "Rioja", "r.jpg")

	result := h.pipeline(t).UploadMetadata(context.Background(), n.ID)
	assert.Equal(t, pipeline.FailedMetadataUpload, result.FailedStage)
	assert.ErrorIs(t, result.Err, services.ErrValidation)
	_, _, metadata := h.service.snapshot()
	assert.Empty(t, metadata)
}

func TestResyncSkipsNoteClaimedElsewhere(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteJPEG(t, filepath.Join(h.cfg.ImagesDir(), "r.jpg"), 64, 48)
	n := testsupport.NewNote(t, h.store, "Rioja", "r.jpg")
	claimed, err := h.store.ClaimSync(context.Background(), n.ID, time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	result := h.pipeline(t).Resync(context.Background(), n.ID)
	assert.True(t, result.Skipped())
	assert.False(t, result.Synced())
	assert.Equal(t, pipeline.FailedNone, result.FailedStage)
	urlCalls, _, _ := h.service.snapshot()
	assert.Zero(t, urlCalls)
}

func TestResyncWithoutLocalImageSendsNoRequests(t *testing.T) {
	h := newHarness(t)
	inserted, err := h.store.Seed(context.Background())
	require.NoError(t, err)
	require.True(t, inserted)
	list, err := h.store.List(context.Background(), notes.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	seeded := list[0]
	missing := testsupport.NewNote(t, h.store, "Rioja", "gone.jpg")

	p := h.pipeline(t)
	for _, id := range []int64{seeded.ID, missing.ID} {
		result := p.Resync(context.Background(), id)
		assert.Equal(t, pipeline.StateFailed, result.State)
		assert.Equal(t, pipeline.FailedPersist, result.FailedStage)
		assert.ErrorIs(t, result.Err, services.ErrNotFound)

		stored, err := h.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, notes.SyncFailed, stored.SyncState)
		assert.Empty(t, stored.RemoteURI)
	}

	urlCalls, uploadCalls, metadata := h.service.snapshot()
	assert.Zero(t, urlCalls)
	assert.Zero(t, uploadCalls)
	assert.Empty(t, metadata)
}

type failingStore struct {
	*notes.Store
}

func (failingStore) SetTextExtract(context.Context, int64, string) error {
	return services.Wrap(services.ErrPersistence, "", "set text extract", "", errors.New("disk I/O error"))
}

func TestStoreErrorMapsToPersist(t *testing.T) {
	h := newHarness(t)
	exec := transport.NewExecutor()
	client, err := content.NewClient(h.service.server.URL, exec, time.UTC, nil)
	require.NoError(t, err)
	p := pipeline.New(failingStore{h.store}, client)

	result := p.Process(context.Background(), h.capture(t, "f1"))
	assert.Equal(t, pipeline.FailedPersist, result.FailedStage)
	assert.Equal(t, pipeline.StateOCRDone, result.Reached)
	assert.ErrorIs(t, result.Err, services.ErrPersistence)
	urlCalls, _, _ := h.service.snapshot()
	assert.Zero(t, urlCalls)
}

func TestCancelledContextDuringBackoff(t *testing.T) {
	h := newHarness(t)
	h.service.urlStatuses = []int{503, 503}
	ctx, cancel := context.WithCancel(context.Background())

	exec := transport.NewExecutor(transport.WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	client, err := content.NewClient(h.service.server.URL, exec, time.UTC, nil)
	require.NoError(t, err)
	p := pipeline.New(h.store, client, pipeline.WithImagesDir(h.cfg.ImagesDir()))

	result := p.Process(ctx, h.capture(t, "g1"))
	assert.Equal(t, pipeline.FailedURLFetch, result.FailedStage)
	assert.ErrorIs(t, result.Err, context.Canceled)

	note, err := h.store.Get(context.Background(), result.NoteID)
	require.NoError(t, err)
	assert.Equal(t, notes.SyncFailed, note.SyncState, "failure bookkeeping must survive cancellation")
}
