package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/models"
)

const (
	defaultBusyTimeout = "5000"
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

type (
	Client struct {
		db  *sql.DB
		log *logger.Logger
	}

	Option func(*Client) error
)

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) error {
		if log == nil {
			return errors.New("logger must not be nil")
		}
		c.log = log
		return nil
	}
}

var _ Repository = (*Client)(nil)

// NewClient opens the shared store at dbPath. Writes go through a single
// connection so record/event pairs are serialized with BEGIN IMMEDIATE;
// other monitors writing the same file wait on the busy timeout.
func NewClient(dbPath string, opts ...Option) (*Client, error) {
	client := &Client{log: logger.NewNop()}
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite3", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)
	database.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	client.db = database
	return client, nil
}

func buildDSN(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Migrate() error {
	return RunMigrations(c.db)
}

func (c *Client) InsertRecord(ctx context.Context, rec models.FileRecord, event models.Event) (int64, int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.log.Errorw("failed to roll back record insert", "path", rec.Path, "error", rbErr)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO Files (filename, file_path, creation_time, modification_time, deletion_time, hash_value, user, role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.Path, rec.CreationTime.UTC(), utcNull(rec.ModificationTime), utcNull(rec.DeletionTime),
		rec.Hash, rec.User, string(rec.Role),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("insert file record: %w", err)
	}

	fileID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("read file id: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO Events (event_type, event_time, file_id, renamed_from, renamed_to)
		VALUES (?, ?, ?, ?, ?)`,
		string(event.Type), event.Time.UTC(), fileID, nullString(event.RenamedFrom), nullString(event.RenamedTo),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("insert event: %w", err)
	}

	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("read event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit record: %w", err)
	}
	return fileID, eventID, nil
}

func utcNull(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: t.Time.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
