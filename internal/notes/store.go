package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"winecellar/internal/services"
)

const noteColumns = "id, wine, rating, text_extract, notes, share, picture, remote_uri, created_ms, updated_ms, sync_state, sync_stage, sync_error, sync_started_ms, sync_attempts"

// Seed note inserted into an empty store.
const (
	SeedWine        = "Cabernet Sauvignon"
	SeedRating      = "4.0"
	SeedTextExtract = "Kenwood Vineyards 2004 Sonoma County"
	SeedNotes       = "Raspberry and candied strawberry with moderately high tannin on the finish."
)

func persistErr(operation string, id int64, err error) error {
	message := ""
	if id > 0 {
		message = fmt.Sprintf("note %d", id)
	}
	return services.Wrap(services.ErrPersistence, "", operation, message, err)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrNotFound, id)
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// Create inserts n and fills in its id and timestamps.
func (s *Store) Create(ctx context.Context, n *Note) error {
	if n == nil {
		return services.Wrap(services.ErrValidation, "", "create note", "nil note", nil)
	}
	rating := strings.TrimSpace(n.Rating)
	if rating == "" {
		rating = DefaultRating
	}
	share := strings.TrimSpace(n.Share)
	if share == "" {
		share = ShareYes
	}
	created := n.CreatedAt.UnixMilli()
	if n.CreatedAt.IsZero() {
		created = s.nowMs()
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO notes (
            wine, rating, text_extract, notes, share, picture, remote_uri,
            created_ms, updated_ms, sync_state
        ) VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
		strings.TrimSpace(n.Wine),
		rating,
		strings.TrimSpace(n.TextExtract),
		strings.TrimSpace(n.Notes),
		share,
		strings.TrimSpace(n.PictureFileName),
		created,
		created,
		SyncPending,
	)
	if err != nil {
		return persistErr("insert note", 0, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return persistErr("last insert id", 0, err)
	}

	stored, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	*n = *stored
	return nil
}

// Get fetches a note by id.
func (s *Store) Get(ctx context.Context, id int64) (*Note, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr("get note", id, err)
	}
	return n, nil
}

// Update writes the non-empty fields of patch and bumps UpdatedAt.
func (s *Store) Update(ctx context.Context, id int64, patch Patch) (*Note, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(column, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if rating := strings.TrimSpace(patch.Rating); rating != DefaultRating {
		add("rating", rating)
	}
	add("wine", patch.Wine)
	add("text_extract", patch.TextExtract)
	add("notes", patch.Notes)
	add("picture", patch.PictureFileName)
	add("share", patch.Share)
	sets = append(sets, "updated_ms = MAX(updated_ms, ?)")
	args = append(args, s.nowMs(), id)

	if err := s.updateOne(ctx, "update note", id, `UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetTextExtract stores the OCR text of a note.
func (s *Store) SetTextExtract(ctx context.Context, id int64, text string) error {
	return s.updateOne(ctx, "set text extract", id,
		`UPDATE notes SET text_extract = ?, updated_ms = MAX(updated_ms, ?) WHERE id = ?`,
		strings.TrimSpace(text), s.nowMs(), id)
}

// SetRemoteURI stores the URI returned by the image upload.
func (s *Store) SetRemoteURI(ctx context.Context, id int64, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return services.Wrap(services.ErrValidation, "", "set remote uri", fmt.Sprintf("note %d: empty uri", id), nil)
	}
	return s.updateOne(ctx, "set remote uri", id,
		`UPDATE notes SET remote_uri = ?, updated_ms = MAX(updated_ms, ?) WHERE id = ?`,
		uri, s.nowMs(), id)
}

// SetSyncState records sync bookkeeping. UpdatedAt is not touched.
func (s *Store) SetSyncState(ctx context.Context, id int64, state SyncState, stage, message string) error {
	var started any
	if state == SyncSyncing {
		started = s.nowMs()
	}
	return s.updateOne(ctx, "set sync state", id,
		`UPDATE notes SET sync_state = ?, sync_stage = ?, sync_error = ?, sync_started_ms = ? WHERE id = ?`,
		state, nullableString(stage), nullableString(message), started, id)
}

// ClaimSync marks a note as syncing unless another claim newer than
// staleAfter holds it. It reports whether the claim was taken.
func (s *Store) ClaimSync(ctx context.Context, id int64, staleAfter time.Duration) (bool, error) {
	now := s.nowMs()
	cutoff := now - staleAfter.Milliseconds()
	res, err := s.execWithRetry(ctx,
		`UPDATE notes
            SET sync_state = ?, sync_stage = NULL, sync_error = NULL,
                sync_started_ms = ?, sync_attempts = sync_attempts + 1
          WHERE id = ?
            AND (sync_state != ? OR sync_started_ms IS NULL OR sync_started_ms < ?)`,
		SyncSyncing, now, id, SyncSyncing, cutoff,
	)
	if err != nil {
		return false, persistErr("claim sync", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("claim sync", id, err)
	}
	if affected == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ListOptions filters List.
type ListOptions struct {
	Limit  int
	Offset int
	States []SyncState
}

// List returns notes ordered by most recently updated.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	args := make([]any, 0, len(opts.States)+2)
	if len(opts.States) > 0 {
		placeholders := make([]string, len(opts.States))
		for i, state := range opts.States {
			placeholders[i] = "?"
			args = append(args, state)
		}
		query += ` WHERE sync_state IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY updated_ms DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, max(opts.Offset, 0))
	}
	return s.query(ctx, "list notes", query, args...)
}

// Pending returns notes whose last sync did not complete, oldest first.
// Notes without a picture are local-only and never listed.
func (s *Store) Pending(ctx context.Context) ([]*Note, error) {
	return s.query(ctx, "list pending notes",
		`SELECT `+noteColumns+` FROM notes WHERE sync_state != ? AND picture != '' ORDER BY id`, SyncSynced)
}

// Count returns the number of stored notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM notes`).Scan(&count); err != nil {
		return 0, persistErr("count notes", 0, err)
	}
	return count, nil
}

// Stats returns note counts keyed by sync state.
func (s *Store) Stats(ctx context.Context) (map[SyncState]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT sync_state, COUNT(1) FROM notes GROUP BY sync_state`)
	if err != nil {
		return nil, persistErr("note stats", 0, err)
	}
	defer rows.Close()

	stats := make(map[SyncState]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, persistErr("note stats", 0, err)
		}
		stats[SyncState(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("note stats", 0, err)
	}
	return stats, nil
}

// Delete removes a note.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.updateOne(ctx, "delete note", id, `DELETE FROM notes WHERE id = ?`, id)
}

// Seed inserts the sample note when the store is empty. It reports whether
// a note was inserted.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	n := New(SeedWine, SeedRating, SeedNotes, "")
	n.TextExtract = SeedTextExtract
	if err := s.Create(ctx, n); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) updateOne(ctx context.Context, operation string, id int64, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return persistErr(operation, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistErr(operation, id, err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) query(ctx context.Context, operation, query string, args ...any) ([]*Note, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, persistErr(operation, 0, err)
	}
	defer rows.Close()

	var out []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, persistErr(operation, 0, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(operation, 0, err)
	}
	return out, nil
}
