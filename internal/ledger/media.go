package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"facescan/internal/services"
)

const mediaColumns = "media_uuid, path, storage_uuid, width, height, orientation, mime_type"

const unscannedQuery = `SELECT ` + mediaColumns + ` FROM media
 WHERE media_uuid NOT IN (SELECT DISTINCT media_uuid FROM face_scan_list)
   AND validity = 1 AND media_type = 0`

const storageAll = ` AND (storage_type = 0 OR storage_type = 1)`
const storageInternal = ` AND storage_type = 0`

func storageFilter(includeRemovable bool) string {
	if includeRemovable {
		return storageAll
	}
	return storageInternal
}

// UnscannedItems lists valid images with no scan ledger entry, in catalog order.
// Removable storage is included only when includeRemovable is set.
func (l *Ledger) UnscannedItems(ctx context.Context, includeRemovable bool) ([]MediaItem, error) {
	query := unscannedQuery + storageFilter(includeRemovable) + ` ORDER BY rowid`
	return l.queryItems(ctx, "unscanned_items", query)
}

// ItemsByPath resolves a file path to its catalog rows.
func (l *Ledger) ItemsByPath(ctx context.Context, path string, includeRemovable bool) ([]MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE path = ? AND validity = 1 AND media_type = 0` +
		storageFilter(includeRemovable) + ` ORDER BY rowid`
	return l.queryItems(ctx, "items_by_path", query, path)
}

func (l *Ledger) queryItems(ctx context.Context, operation, query string, args ...any) ([]MediaItem, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(operation, "query", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var item MediaItem
		if err := rows.Scan(
			&item.MediaID,
			&item.Path,
			&item.StorageID,
			&item.Width,
			&item.Height,
			&item.Orientation,
			&item.MIMEType,
		); err != nil {
			return nil, classify(operation, "scan row", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(operation, "iterate rows", err)
	}
	return items, nil
}

// IsScanned reports whether mediaID has a scan ledger entry.
func (l *Ledger) IsScanned(ctx context.Context, mediaID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM face_scan_list WHERE media_uuid = ? LIMIT 1`, mediaID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("is_scanned", mediaID, err)
	}
	return true, nil
}

// MarkScanned appends mediaID to the scan ledger. A second append for the same
// media returns ErrDuplicate.
func (l *Ledger) MarkScanned(ctx context.Context, mediaID, storageID string) error {
	_, err := l.execWithRetry(ctx,
		`INSERT INTO face_scan_list (media_uuid, storage_uuid) VALUES (?, ?)`,
		mediaID, storageID,
	)
	if isConstraint(err) {
		return ErrDuplicate
	}
	return classify("mark_scanned", mediaID, err)
}

// UpdateColor stores the averaged color for a media row.
func (l *Ledger) UpdateColor(ctx context.Context, mediaID, storageID string, c Color) error {
	res, err := l.execWithRetry(ctx,
		`UPDATE media SET color_r = ?, color_g = ?, color_b = ? WHERE media_uuid = ? AND storage_uuid = ?`,
		int(c.R), int(c.G), int(c.B), mediaID, storageID,
	)
	if err != nil {
		return classify("update_color", mediaID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "ledger", "update_color", mediaID, nil)
	}
	return nil
}

// AddMedia registers a catalog row. A fresh media id is assigned when item has none.
func (l *Ledger) AddMedia(ctx context.Context, item MediaItem) (MediaItem, error) {
	if strings.TrimSpace(item.Path) == "" {
		return MediaItem{}, services.Wrap(services.ErrValidation, "ledger", "add_media", "path is required", nil)
	}
	if item.MediaID == "" {
		item.MediaID = uuid.NewString()
	}
	_, err := l.execWithRetry(ctx,
		`INSERT INTO media (media_uuid, path, storage_uuid, storage_type, width, height, orientation, mime_type, media_type, validity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		item.MediaID,
		item.Path,
		item.StorageID,
		int(item.StorageType),
		item.Width,
		item.Height,
		item.Orientation,
		item.MIMEType,
		MediaTypeImage,
	)
	if isConstraint(err) {
		return MediaItem{}, ErrDuplicate
	}
	if err != nil {
		return MediaItem{}, classify("add_media", item.Path, err)
	}
	return item, nil
}

// MediaColor returns the stored color for mediaID, if any.
func (l *Ledger) MediaColor(ctx context.Context, mediaID string) (Color, bool, error) {
	var r, g, b sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT color_r, color_g, color_b FROM media WHERE media_uuid = ?`, mediaID).Scan(&r, &g, &b)
	if errors.Is(err, sql.ErrNoRows) {
		return Color{}, false, nil
	}
	if err != nil {
		return Color{}, false, classify("media_color", mediaID, err)
	}
	if !r.Valid || !g.Valid || !b.Valid {
		return Color{}, false, nil
	}
	return Color{R: uint8(r.Int64), G: uint8(g.Int64), B: uint8(b.Int64)}, true, nil
}
