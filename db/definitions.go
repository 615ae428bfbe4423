package db

import (
	"context"
	"errors"
	"time"

	"github.com/tejiriaustin/fimtracker/models"
)

var ErrNotFound = errors.New("record not found")

type (
	// Writer appends a file record and its event as one unit.
	Writer interface {
		InsertRecord(ctx context.Context, rec models.FileRecord, event models.Event) (fileID, eventID int64, err error)
	}

	// Lookup finds the most recently inserted record for a key.
	Lookup interface {
		LatestByPath(ctx context.Context, path string) (models.FileRecord, error)
		LatestByFilename(ctx context.Context, filename string) (models.FileRecord, error)
		LatestPerPath(ctx context.Context, limit int) ([]models.FileRecord, error)
		LatestPerFilename(ctx context.Context, limit int) ([]models.FileRecord, error)
	}

	// Querier is the read-only surface used by the query API.
	Querier interface {
		ListFiles(ctx context.Context, limit int) ([]models.FileView, error)
		History(ctx context.Context, path string) ([]models.FileView, error)
		ListEvents(ctx context.Context, since time.Time, limit int) ([]models.Event, error)
	}

	Repository interface {
		Writer
		Lookup
		Querier
		CountFiles(ctx context.Context) (int64, error)
		Migrate() error
		Close() error
	}
)
