package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/lostfound/internal/models"
)

var ErrNotFound = errors.New("not found")

// LostObjectRepo stores the history of Lost transitions.
type LostObjectRepo struct {
	db *DB
}

func NewLostObjectRepo(db *DB) *LostObjectRepo {
	return &LostObjectRepo{db: db}
}

const lostObjectColumns = `id, session_id, identity_id, name, class_id, frame, confidence, color,
	bbox_xmin, bbox_ymin, bbox_xmax, bbox_ymax, lost_at, artifact_key, image_path,
	metadata_path, reactivated_at, reactivated_frame`

// Record inserts the history row of a lost record. Recording the same
// identity and frame again updates the row in place, which keeps full-rebuild
// cycles from piling up duplicates.
func (r *LostObjectRepo) Record(ctx context.Context, sessionID string, rec models.LostRecord) error {
	obj := models.NewLostObject(sessionID, rec)
	query := r.db.rebind(`
		INSERT INTO lost_objects (` + lostObjectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
		ON CONFLICT (identity_id, frame)
		DO UPDATE SET
			session_id = EXCLUDED.session_id,
			confidence = EXCLUDED.confidence,
			color = EXCLUDED.color,
			image_path = EXCLUDED.image_path,
			metadata_path = EXCLUDED.metadata_path,
			reactivated_at = NULL,
			reactivated_frame = NULL`)

	_, err := r.db.conn.ExecContext(ctx, query,
		obj.ID,
		obj.SessionID,
		obj.IdentityID,
		obj.Name,
		obj.ClassID,
		obj.Frame,
		obj.Confidence,
		obj.Color,
		obj.BBox.XMin,
		obj.BBox.YMin,
		obj.BBox.XMax,
		obj.BBox.YMax,
		obj.LostAt.UTC(),
		obj.ArtifactKey,
		obj.ImagePath,
		obj.MetadataPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record lost object %s: %w", obj.ArtifactKey, err)
	}
	return nil
}

// MarkReactivated flags the row of key as found again at frame.
func (r *LostObjectRepo) MarkReactivated(ctx context.Context, key string, frame int, at time.Time) error {
	query := r.db.rebind(`UPDATE lost_objects SET reactivated_at = ?, reactivated_frame = ? WHERE artifact_key = ?`)
	res, err := r.db.conn.ExecContext(ctx, query, at.UTC(), frame, key)
	if err != nil {
		return fmt.Errorf("failed to mark %s reactivated: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark %s reactivated: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("lost object %s: %w", key, ErrNotFound)
	}
	return nil
}

type ListFilter struct {
	Name string
	// Pending keeps only objects that have not been found again.
	Pending bool
	Limit   int
}

// List returns lost objects, most recently lost first.
func (r *LostObjectRepo) List(ctx context.Context, f ListFilter) ([]models.LostObject, error) {
	query := `SELECT ` + lostObjectColumns + ` FROM lost_objects WHERE 1=1`
	var args []any
	if f.Name != "" {
		query += ` AND name = ?`
		args = append(args, f.Name)
	}
	if f.Pending {
		query += ` AND reactivated_at IS NULL`
	}
	query += ` ORDER BY lost_at DESC, identity_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return r.query(ctx, r.db.rebind(query), args...)
}

// ByIdentity returns every Lost transition of one identity, oldest first.
func (r *LostObjectRepo) ByIdentity(ctx context.Context, identityID string) ([]models.LostObject, error) {
	query := r.db.rebind(`SELECT ` + lostObjectColumns + ` FROM lost_objects WHERE identity_id = ? ORDER BY frame`)
	objs, err := r.query(ctx, query, identityID)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("identity %s: %w", identityID, ErrNotFound)
	}
	return objs, nil
}

func (r *LostObjectRepo) query(ctx context.Context, query string, args ...any) ([]models.LostObject, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lost objects: %w", err)
	}
	defer rows.Close()

	var objs []models.LostObject
	for rows.Next() {
		var (
			obj              models.LostObject
			reactivatedAt    sql.NullTime
			reactivatedFrame sql.NullInt64
		)
		if err := rows.Scan(
			&obj.ID,
			&obj.SessionID,
			&obj.IdentityID,
			&obj.Name,
			&obj.ClassID,
			&obj.Frame,
			&obj.Confidence,
			&obj.Color,
			&obj.BBox.XMin,
			&obj.BBox.YMin,
			&obj.BBox.XMax,
			&obj.BBox.YMax,
			&obj.LostAt,
			&obj.ArtifactKey,
			&obj.ImagePath,
			&obj.MetadataPath,
			&reactivatedAt,
			&reactivatedFrame,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lost object: %w", err)
		}
		if reactivatedAt.Valid {
			t := reactivatedAt.Time
			obj.Reactivated = &t
		}
		if reactivatedFrame.Valid {
			n := int(reactivatedFrame.Int64)
			obj.ReactivatedFrame = &n
		}
		objs = append(objs, obj)
	}
	return objs, rows.Err()
}
