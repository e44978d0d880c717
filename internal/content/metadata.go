package content

import (
	"encoding/json"
	"time"

	"winecellar/internal/notes"
)

// Metadata is the JSON document posted for a synced note. Field order is
// part of the wire format.
type Metadata struct {
	RowID                       int64  `json:"rowId"`
	Wine                        string `json:"wine"`
	Rating                      string `json:"rating"`
	TextExtract                 string `json:"textExtract"`
	Notes                       string `json:"notes"`
	URI                         string `json:"uri"`
	TimeCreatedMs               int64  `json:"timeCreatedMs"`
	TimeCreatedTimeZoneOffsetMs int64  `json:"timeCreatedTimeZoneOffsetMs"`
	TimeUpdatedMs               int64  `json:"timeUpdatedMs"`
	TimeUpdatedTimeZoneOffsetMs int64  `json:"timeUpdatedTimeZoneOffsetMs"`
}

// BuildMetadata maps a note onto the wire document. Offsets are the zone
// offset of loc at each timestamp, so they follow daylight saving changes.
func BuildMetadata(note *notes.Note, loc *time.Location) Metadata {
	if loc == nil {
		loc = time.Local
	}
	return Metadata{
		RowID:                       note.ID,
		Wine:                        note.Wine,
		Rating:                      note.Rating,
		TextExtract:                 note.TextExtract,
		Notes:                       note.Notes,
		URI:                         note.RemoteURI,
		TimeCreatedMs:               note.CreatedAtMs(),
		TimeCreatedTimeZoneOffsetMs: zoneOffsetMs(note.CreatedAt, loc),
		TimeUpdatedMs:               note.UpdatedAtMs(),
		TimeUpdatedTimeZoneOffsetMs: zoneOffsetMs(note.UpdatedAt, loc),
	}
}

// EncodeMetadata serializes m. Equal documents encode to equal bytes.
func EncodeMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func zoneOffsetMs(t time.Time, loc *time.Location) int64 {
	_, offset := t.In(loc).Zone()
	return int64(offset) * 1000
}
