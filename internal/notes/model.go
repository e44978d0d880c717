package notes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"winecellar/internal/services"
)

const (
	DefaultRating = "0.0"
	ShareYes      = "Y"
	ShareNo       = "N"
	MaxRating     = 5.0
)

// SyncState records how far the last sync of a note got.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSyncing SyncState = "syncing"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// ErrNotFound is returned when no note has the requested id. It matches
// services.ErrNotFound.
var ErrNotFound = fmt.Errorf("note %w", services.ErrNotFound)

// Note is one tasting note.
type Note struct {
	ID              int64
	Wine            string
	Rating          string
	TextExtract     string
	Notes           string
	Share           string
	PictureFileName string
	RemoteURI       string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	SyncState     SyncState
	SyncStage     string
	SyncError     string
	SyncStartedAt time.Time
	SyncAttempts  int
}

// New returns a note with default rating and sharing flag.
func New(wine, rating, notes, picture string) *Note {
	n := &Note{
		Wine:            NormalizeWine(wine),
		Rating:          strings.TrimSpace(rating),
		Notes:           strings.TrimSpace(notes),
		PictureFileName: strings.TrimSpace(picture),
		Share:           ShareYes,
		SyncState:       SyncPending,
	}
	if n.Rating == "" {
		n.Rating = DefaultRating
	}
	return n
}

// CreatedAtMs returns the creation time in epoch milliseconds.
func (n *Note) CreatedAtMs() int64 { return n.CreatedAt.UnixMilli() }

// UpdatedAtMs returns the last content update in epoch milliseconds.
func (n *Note) UpdatedAtMs() int64 { return n.UpdatedAt.UnixMilli() }

// Synced reports whether the last sync completed.
func (n *Note) Synced() bool { return n.SyncState == SyncSynced }

// Patch lists the fields Update may change. Empty fields are left untouched,
// as is Rating when it equals DefaultRating.
type Patch struct {
	Wine            string
	Rating          string
	TextExtract     string
	Notes           string
	Share           string
	PictureFileName string
}

// Empty reports whether the patch would change no content field.
func (p Patch) Empty() bool {
	rating := strings.TrimSpace(p.Rating)
	return strings.TrimSpace(p.Wine) == "" &&
		(rating == "" || rating == DefaultRating) &&
		strings.TrimSpace(p.TextExtract) == "" &&
		strings.TrimSpace(p.Notes) == "" &&
		strings.TrimSpace(p.Share) == "" &&
		strings.TrimSpace(p.PictureFileName) == ""
}

// NormalizeWine trims and collapses whitespace. All lower-case input is
// title-cased; anything with capitals is kept as typed.
func NormalizeWine(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	if name == strings.ToLower(name) {
		return cases.Title(language.English).String(name)
	}
	return name
}

// ValidateRating parses a rating and returns it with one decimal place.
func ValidateRating(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultRating, nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "parse rating", fmt.Sprintf("%q is not a number", text), nil)
	}
	if value < 0 || value > MaxRating {
		return "", services.Wrap(services.ErrValidation, "", "parse rating", fmt.Sprintf("%s is outside 0-%.0f", text, MaxRating), nil)
	}
	return strconv.FormatFloat(value, 'f', 1, 64), nil
}

// ValidateShare normalizes a sharing flag to Y or N.
func ValidateShare(flag string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(flag)) {
	case "", ShareYes, "YES", "TRUE":
		return ShareYes, nil
	case ShareNo, "NO", "FALSE":
		return ShareNo, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "parse share flag", fmt.Sprintf("%q", flag), nil)
	}
}
