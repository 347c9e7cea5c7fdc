package ledger

import (
	"context"

	"github.com/google/uuid"
)

// InsertFace stores one detected face and returns its id. A fresh UUID is
// assigned when f carries none.
func (l *Ledger) InsertFace(ctx context.Context, f Face) (string, error) {
	if f.FaceID == "" {
		f.FaceID = uuid.NewString()
	}
	_, err := l.execWithRetry(ctx,
		`INSERT INTO face (face_uuid, media_uuid, face_rect_x, face_rect_y, face_rect_w, face_rect_h, orientation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.FaceID, f.MediaID, f.X, f.Y, f.W, f.H, f.Orientation,
	)
	if isConstraint(err) {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", classify("insert_face", f.MediaID, err)
	}
	return f.FaceID, nil
}

// FacesForMedia lists the faces recorded for mediaID.
func (l *Ledger) FacesForMedia(ctx context.Context, mediaID string) ([]Face, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT face_uuid, media_uuid, face_rect_x, face_rect_y, face_rect_w, face_rect_h, orientation
		 FROM face WHERE media_uuid = ? ORDER BY rowid`, mediaID)
	if err != nil {
		return nil, classify("faces_for_media", mediaID, err)
	}
	defer rows.Close()

	var faces []Face
	for rows.Next() {
		var f Face
		if err := rows.Scan(&f.FaceID, &f.MediaID, &f.X, &f.Y, &f.W, &f.H, &f.Orientation); err != nil {
			return nil, classify("faces_for_media", "scan row", err)
		}
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("faces_for_media", "iterate rows", err)
	}
	return faces, nil
}

// Stats reports catalog and scan totals.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM media WHERE validity = 1 AND media_type = 0),
		(SELECT COUNT(1) FROM media WHERE validity = 1 AND media_type = 0 AND storage_type = 1),
		(SELECT COUNT(1) FROM face_scan_list),
		(SELECT COUNT(1) FROM media WHERE validity = 1 AND media_type = 0
			AND media_uuid NOT IN (SELECT DISTINCT media_uuid FROM face_scan_list)),
		(SELECT COUNT(1) FROM face)`).Scan(&s.Media, &s.Removable, &s.Scanned, &s.Pending, &s.Faces)
	if err != nil {
		return Stats{}, classify("stats", "", err)
	}
	return s, nil
}
