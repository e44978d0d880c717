package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"winecellar/internal/connectivity"
	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/ocr"
	"winecellar/internal/services"
)

// DefaultClaimTimeout is how long a sync claim blocks other processes.
const DefaultClaimTimeout = 15 * time.Minute

// Store is the slice of notes.Store the pipeline needs.
type Store interface {
	Create(ctx context.Context, n *notes.Note) error
	Get(ctx context.Context, id int64) (*notes.Note, error)
	SetTextExtract(ctx context.Context, id int64, text string) error
	SetRemoteURI(ctx context.Context, id int64, uri string) error
	SetSyncState(ctx context.Context, id int64, state notes.SyncState, stage, message string) error
	ClaimSync(ctx context.Context, id int64, staleAfter time.Duration) (bool, error)
}

// Recognizer extracts label text. It returns ocr.FailureText when recognition fails.
type Recognizer interface {
	ExtractText(ctx context.Context, jpeg []byte) string
}

// ContentService is the remote side of the sync.
type ContentService interface {
	UploadURL(ctx context.Context) (string, error)
	UploadImage(ctx context.Context, uploadURL string, noteID int64, imagePath string) (string, error)
	UploadMetadata(ctx context.Context, note *notes.Note) error
}

// Capture is a freshly imported photo plus the details typed alongside it.
type Capture struct {
	Wine   string
	Rating string
	Notes  string
	Share  string
	// ImagePath is the full-resolution image that gets uploaded.
	ImagePath string
	// ThumbnailPath feeds recognition; ImagePath is used when empty.
	ThumbnailPath string
}

// Pipeline runs the capture and sync state machine.
type Pipeline struct {
	store        Store
	content      ContentService
	recognizer   Recognizer
	checker      connectivity.Checker
	connOpts     []connectivity.Option
	imagesDir    string
	jpegQuality  int
	claimTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	newID        func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRecognizer enables text recognition. Without one, notes keep an empty extract.
func WithRecognizer(r Recognizer) Option {
	return func(p *Pipeline) {
		p.recognizer = r
	}
}

// WithConnectivity gates the network stages behind connectivity.Await.
func WithConnectivity(checker connectivity.Checker, opts ...connectivity.Option) Option {
	return func(p *Pipeline) {
		p.checker = checker
		p.connOpts = opts
	}
}

// WithImagesDir sets where stored picture file names are resolved on resync.
func WithImagesDir(dir string) Option {
	return func(p *Pipeline) {
		p.imagesDir = dir
	}
}

// WithJPEGQuality sets the quality of the image sent for recognition.
func WithJPEGQuality(quality int) Option {
	return func(p *Pipeline) {
		if quality > 0 && quality <= 100 {
			p.jpegQuality = quality
		}
	}
}

// WithClaimTimeout sets how long a sync claim is honoured.
func WithClaimTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.claimTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records stage and result metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRequestIDs overrides the correlation id generator.
func WithRequestIDs(next func() string) Option {
	return func(p *Pipeline) {
		if next != nil {
			p.newID = next
		}
	}
}

// New constructs a pipeline.
func New(store Store, content ContentService, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		content:      content,
		jpegQuality:  ocr.DefaultJPEGQuality,
		claimTimeout: DefaultClaimTimeout,
		logger:       logging.NewNop(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p
}

// Process stores a new capture, recognizes its label, and syncs it.
func (p *Pipeline) Process(ctx context.Context, c Capture) Result {
	r := p.begin(ctx)

	note := notes.New(c.Wine, c.Rating, c.Notes, filepath.Base(c.ImagePath))
	if share := strings.TrimSpace(c.Share); share != "" {
		note.Share = share
	}
	if err := p.store.Create(r.ctx, note); err != nil {
		return r.fail(FailedPersist, err)
	}
	r.attach(note.ID)
	r.reach(StateCaptured)

	text := p.recognize(r.ctx, c)
	r.reach(StateOCRDone)

	if err := p.store.SetTextExtract(r.ctx, note.ID, text); err != nil {
		return r.fail(FailedPersist, err)
	}
	r.reach(StateLocalPersisted)

	return p.sync(r, c.ImagePath)
}

// Resync re-runs the three network steps for a stored note.
func (p *Pipeline) Resync(ctx context.Context, noteID int64) Result {
	r := p.begin(ctx)
	r.attach(noteID)

	note, err := p.store.Get(r.ctx, noteID)
	if err != nil {
		return r.fail(FailedPersist, err)
	}
	r.result.Reached = StateLocalPersisted
	return p.sync(r, p.imagePath(note))
}

// UploadMetadata re-posts the metadata of a note whose image is already
// uploaded.
func (p *Pipeline) UploadMetadata(ctx context.Context, noteID int64) Result {
	r := p.begin(ctx)
	r.attach(noteID)

	note, err := p.store.Get(r.ctx, noteID)
	if err != nil {
		return r.fail(FailedPersist, err)
	}
	if strings.TrimSpace(note.RemoteURI) == "" {
		return r.fail(FailedMetadataUpload, services.Wrap(services.ErrValidation, string(StateImageUploaded),
			"upload metadata", "image has not been uploaded", nil))
	}
	r.result.Reached = StateImageUploaded
	r.result.RemoteURI = note.RemoteURI

	if done, result := p.claim(r); done {
		return result
	}
	if !p.awaitNetwork(r) {
		return r.fail(FailedConnectivity, services.Wrap(services.ErrConnectivity, string(FailedConnectivity), "await network", "", nil))
	}
	return p.postMetadata(r)
}

func (p *Pipeline) sync(r *run, imagePath string) Result {
	id := r.result.NoteID
	if err := requireImageFile(imagePath); err != nil {
		return r.fail(FailedPersist, err)
	}
	if done, result := p.claim(r); done {
		return result
	}

	if !p.awaitNetwork(r) {
		return r.fail(FailedConnectivity, services.Wrap(services.ErrConnectivity, string(FailedConnectivity), "await network", "", nil))
	}

	r.stage(FailedURLFetch)
	uploadURL, err := p.content.UploadURL(r.ctx)
	if err != nil {
		return r.fail(FailedURLFetch, err)
	}
	r.reach(StateURLFetched)

	r.stage(FailedImageUpload)
	uri, err := p.content.UploadImage(r.ctx, uploadURL, id, imagePath)
	if err != nil {
		return r.fail(FailedImageUpload, err)
	}
	if err := p.store.SetRemoteURI(r.ctx, id, uri); err != nil {
		return r.fail(FailedPersist, err)
	}
	r.result.RemoteURI = uri
	r.reach(StateImageUploaded)

	return p.postMetadata(r)
}

func (p *Pipeline) postMetadata(r *run) Result {
	id := r.result.NoteID
	r.stage(FailedMetadataUpload)

	note, err := p.store.Get(r.ctx, id)
	if err != nil {
		return r.fail(FailedPersist, err)
	}
	if err := p.content.UploadMetadata(r.ctx, note); err != nil {
		return r.fail(FailedMetadataUpload, err)
	}
	if err := p.store.SetSyncState(context.WithoutCancel(r.ctx), id, notes.SyncSynced, "", ""); err != nil {
		return r.fail(FailedPersist, err)
	}
	return r.succeed()
}

// claim takes the cross-process sync claim. When done is true the run is over.
func (p *Pipeline) claim(r *run) (bool, Result) {
	claimed, err := p.store.ClaimSync(r.ctx, r.result.NoteID, p.claimTimeout)
	if err != nil {
		return true, r.fail(FailedPersist, err)
	}
	if !claimed {
		return true, r.skip()
	}
	return false, Result{}
}

func (p *Pipeline) awaitNetwork(r *run) bool {
	if p.checker == nil {
		return true
	}
	r.stage(FailedConnectivity)
	opts := append([]connectivity.Option{connectivity.WithLogger(r.logger)}, p.connOpts...)
	return connectivity.Await(r.ctx, p.checker, opts...) == connectivity.Connected
}

func (p *Pipeline) recognize(ctx context.Context, c Capture) string {
	if p.recognizer == nil {
		return ""
	}
	logger := logging.WithContext(ctx, p.logger)
	source := c.ThumbnailPath
	if source == "" {
		source = c.ImagePath
	}
	file, err := os.Open(source)
	if err != nil {
		logging.WarnWithContext(logger, "recognition skipped", "ocr_input_unreadable",
			logging.String("path", source),
			logging.Error(err),
			logging.String(logging.FieldImpact, "note is stored without a text extract"),
		)
		return ""
	}
	defer file.Close()

	jpegData, err := ocr.PrepareImage(file, p.jpegQuality)
	if err != nil {
		logging.WarnWithContext(logger, "recognition skipped", "ocr_input_undecodable",
			logging.String("path", source),
			logging.Error(err),
			logging.String(logging.FieldImpact, "note is stored without a text extract"),
		)
		return ""
	}
	text := p.recognizer.ExtractText(ctx, jpegData)
	if ocr.IsFailure(text) {
		return ""
	}
	return text
}

// requireImageFile rejects notes whose picture is not a regular local file,
// before any claim or request is made.
func requireImageFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrNotFound, string(FailedImageUpload), "stat image", "note has no picture", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrNotFound, string(FailedImageUpload), "stat image", path, err)
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrNotFound, string(FailedImageUpload), "stat image", path+" is not a regular file", nil)
	}
	return nil
}

func (p *Pipeline) imagePath(note *notes.Note) string {
	if strings.TrimSpace(note.PictureFileName) == "" {
		return ""
	}
	if filepath.IsAbs(note.PictureFileName) || p.imagesDir == "" {
		return note.PictureFileName
	}
	return filepath.Join(p.imagesDir, note.PictureFileName)
}
