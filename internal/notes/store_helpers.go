package notes

import (
	"database/sql"
	"time"
)

func scanNote(scanner interface{ Scan(dest ...any) error }) (*Note, error) {
	var (
		n         Note
		stateStr  string
		stage     sql.NullString
		syncError sql.NullString
		started   sql.NullInt64
		createdMs int64
		updatedMs int64
	)
	if err := scanner.Scan(
		&n.ID,
		&n.Wine,
		&n.Rating,
		&n.TextExtract,
		&n.Notes,
		&n.Share,
		&n.PictureFileName,
		&n.RemoteURI,
		&createdMs,
		&updatedMs,
		&stateStr,
		&stage,
		&syncError,
		&started,
		&n.SyncAttempts,
	); err != nil {
		return nil, err
	}
	n.CreatedAt = time.UnixMilli(createdMs)
	n.UpdatedAt = time.UnixMilli(updatedMs)
	n.SyncState = SyncState(stateStr)
	n.SyncStage = stage.String
	n.SyncError = syncError.String
	if started.Valid {
		n.SyncStartedAt = time.UnixMilli(started.Int64)
	}
	return &n, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
