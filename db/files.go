package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tejiriaustin/fimtracker/models"
)

const fileColumns = `file_id, filename, file_path, creation_time, modification_time, deletion_time, hash_value, user, role`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.FileRecord, error) {
	var (
		rec  models.FileRecord
		hash sql.NullString
		user sql.NullString
		role sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Path, &rec.CreationTime,
		&rec.ModificationTime, &rec.DeletionTime, &hash, &user, &role)
	if err != nil {
		return models.FileRecord{}, err
	}
	rec.Hash = hash.String
	rec.User = user.String
	rec.Role = models.Role(role.String)
	return rec, nil
}

func (c *Client) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		c.log.Warnw("failed to close rows", "error", err)
	}
}

func (c *Client) latest(ctx context.Context, column, value string) (models.FileRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM Files WHERE `+column+` = ? ORDER BY file_id DESC LIMIT 1`, value)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FileRecord{}, ErrNotFound
	}
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("lookup by %s: %w", column, err)
	}
	return rec, nil
}

func (c *Client) LatestByPath(ctx context.Context, path string) (models.FileRecord, error) {
	return c.latest(ctx, "file_path", path)
}

func (c *Client) LatestByFilename(ctx context.Context, filename string) (models.FileRecord, error) {
	return c.latest(ctx, "filename", filename)
}

func (c *Client) latestPer(ctx context.Context, column string, limit int) ([]models.FileRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM Files
		WHERE file_id IN (SELECT MAX(file_id) FROM Files GROUP BY `+column+`)
		ORDER BY file_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest per %s: %w", column, err)
	}
	defer c.closeRows(rows)

	records := make([]models.FileRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestPerPath returns the current record of up to limit paths, newest first.
func (c *Client) LatestPerPath(ctx context.Context, limit int) ([]models.FileRecord, error) {
	return c.latestPer(ctx, "file_path", limit)
}

// LatestPerFilename returns the current record of up to limit basenames, newest first.
func (c *Client) LatestPerFilename(ctx context.Context, limit int) ([]models.FileRecord, error) {
	return c.latestPer(ctx, "filename", limit)
}

func (c *Client) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

const viewColumns = `file_id, filename, file_path, creation_time, modification_time, deletion_time,
	hash_value, event_type, event_time, renamed_from, renamed_to, user, role`

func scanView(rows *sql.Rows) (models.FileView, error) {
	var (
		v                            models.FileView
		modified, deleted, eventTime sql.NullTime
		hash, eventType, from, to    sql.NullString
		user, role                   sql.NullString
	)
	err := rows.Scan(&v.FileID, &v.Filename, &v.Path, &v.CreationTime, &modified, &deleted,
		&hash, &eventType, &eventTime, &from, &to, &user, &role)
	if err != nil {
		return models.FileView{}, err
	}
	v.ModificationTime = timePtr(modified)
	v.DeletionTime = timePtr(deleted)
	v.EventTime = timePtr(eventTime)
	v.Hash = hash.String
	v.EventType = models.EventType(eventType.String)
	v.RenamedFrom = from.String
	v.RenamedTo = to.String
	v.User = user.String
	v.Role = models.Role(role.String)
	return v, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func (c *Client) queryViews(ctx context.Context, query string, args ...any) ([]models.FileView, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.closeRows(rows)

	views := make([]models.FileView, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListFiles reads FilesView, most recently created files first.
func (c *Client) ListFiles(ctx context.Context, limit int) ([]models.FileView, error) {
	views, err := c.queryViews(ctx,
		`SELECT `+viewColumns+` FROM FilesView ORDER BY creation_time DESC, file_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return views, nil
}

// History returns every record ever written for path, in insert order.
func (c *Client) History(ctx context.Context, path string) ([]models.FileView, error) {
	views, err := c.queryViews(ctx,
		`SELECT `+viewColumns+` FROM FilesView WHERE file_path = ? ORDER BY file_id ASC`, path)
	if err != nil {
		return nil, fmt.Errorf("file history: %w", err)
	}
	return views, nil
}

func (c *Client) ListEvents(ctx context.Context, since time.Time, limit int) ([]models.Event, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, event_type, event_time, file_id, renamed_from, renamed_to
		FROM Events
		WHERE event_time > ?
		ORDER BY event_id ASC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer c.closeRows(rows)

	events := make([]models.Event, 0)
	for rows.Next() {
		var (
			event     models.Event
			eventType string
			from, to  sql.NullString
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Time, &event.FileID, &from, &to); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		event.Type = models.EventType(eventType)
		event.RenamedFrom = from.String
		event.RenamedTo = to.String
		events = append(events, event)
	}
	return events, rows.Err()
}
