// Package capture imports label photos into the data directory: the source photo
// is copied under a fresh uuid name and a square thumbnail is rendered next
// to it for recognition and listing.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	// Photos from other devices may be PNG or GIF.
	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"winecellar/internal/config"
	"winecellar/internal/fileutil"
	"winecellar/internal/logging"
	"winecellar/internal/preflight"
	"winecellar/internal/services"
)

const (
	DefaultThumbnailSize = 320
	PictureExtension     = ".jpg"
	thumbnailQuality     = 85
)

// Options controls an import.
type Options struct {
	ImagesDir     string
	ThumbsDir     string
	ThumbnailSize int
	MinFreeMB     int
	Logger        *slog.Logger
}

// OptionsFromConfig maps the [capture] section and data paths to Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		ImagesDir:     cfg.ImagesDir(),
		ThumbsDir:     cfg.ThumbsDir(),
		ThumbnailSize: cfg.Capture.ThumbnailSize,
		MinFreeMB:     cfg.Capture.MinFreeMB,
		Logger:        logger,
	}
}

// Imported describes the files written by Import.
type Imported struct {
	Name          string
	ImagePath     string
	ThumbnailPath string
}

// Import copies the photo at src into the images directory and writes its
// thumbnail. Low disk space is reported as services.ErrInsufficientStorage
// before anything is written.
func Import(ctx context.Context, src string, opts Options) (Imported, error) {
	if err := ctx.Err(); err != nil {
		return Imported{}, err
	}
	if strings.TrimSpace(opts.ImagesDir) == "" || strings.TrimSpace(opts.ThumbsDir) == "" {
		return Imported{}, services.Wrap(services.ErrConfiguration, "capture", "import", "image directories not set", nil)
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = DefaultThumbnailSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "capture")

	for _, dir := range []string{opts.ImagesDir, opts.ThumbsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Imported{}, services.Wrap(services.ErrPersistence, "capture", "create directory", dir, err)
		}
	}
	if err := preflight.EnsureFreeSpace(opts.ImagesDir, opts.MinFreeMB); err != nil {
		return Imported{}, err
	}

	source, err := decodeFile(src)
	if err != nil {
		return Imported{}, services.Wrap(services.ErrValidation, "capture", "decode photo", src, err)
	}

	name := uuid.NewString() + PictureExtension
	out := Imported{
		Name:          name,
		ImagePath:     filepath.Join(opts.ImagesDir, name),
		ThumbnailPath: filepath.Join(opts.ThumbsDir, name),
	}
	if err := fileutil.CopyFileVerified(src, out.ImagePath); err != nil {
		return Imported{}, services.Wrap(services.ErrPersistence, "capture", "copy photo", src, err)
	}

	thumb, err := encodeThumbnail(source, opts.ThumbnailSize)
	if err != nil {
		_ = os.Remove(out.ImagePath)
		return Imported{}, services.Wrap(services.ErrPersistence, "capture", "encode thumbnail", src, err)
	}
	if err := fileutil.WriteFileAtomic(out.ThumbnailPath, thumb, 0o644); err != nil {
		_ = os.Remove(out.ImagePath)
		return Imported{}, services.Wrap(services.ErrPersistence, "capture", "write thumbnail", out.ThumbnailPath, err)
	}

	logger.Info("photo imported",
		logging.String("source", src),
		logging.String("picture", name),
		logging.Int("thumbnail_size", opts.ThumbnailSize),
	)
	return out, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Thumbnail scales the centre square of src to size x size.
func Thumbnail(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	crop := image.Rect(0, 0, side, side).Add(image.Pt(
		bounds.Min.X+(bounds.Dx()-side)/2,
		bounds.Min.Y+(bounds.Dy()-side)/2,
	))
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

func encodeThumbnail(src image.Image, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Thumbnail(src, size), &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
