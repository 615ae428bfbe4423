package models

import (
	"database/sql"
	"time"
)

type EventType string

const (
	EventScanned  EventType = "Scanned"
	EventCreation EventType = "Creation"
	EventModified EventType = "Modified"
	EventRenamed  EventType = "Renamed"
	EventDeletion EventType = "Deletion"
)

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleStandard Role = "Standard User"
)

type (
	// FileRecord is one immutable row of a file's history. New states are
	// appended as new rows, never written over old ones.
	FileRecord struct {
		ID               int64        `json:"file_id"`
		Filename         string       `json:"filename"`
		Path             string       `json:"file_path"`
		CreationTime     time.Time    `json:"creation_time"`
		ModificationTime sql.NullTime `json:"-"`
		DeletionTime     sql.NullTime `json:"-"`
		Hash             string       `json:"hash_value"`
		User             string       `json:"user"`
		Role             Role         `json:"role"`
	}

	Event struct {
		ID          int64     `json:"event_id"`
		Type        EventType `json:"event_type"`
		Time        time.Time `json:"event_time"`
		FileID      int64     `json:"file_id"`
		RenamedFrom string    `json:"renamed_from,omitempty"`
		RenamedTo   string    `json:"renamed_to,omitempty"`
	}

	// FileView is a FileRecord joined with its event, as exposed to readers.
	FileView struct {
		FileID           int64      `json:"file_id"`
		Filename         string     `json:"filename"`
		Path             string     `json:"file_path"`
		CreationTime     time.Time  `json:"creation_time"`
		ModificationTime *time.Time `json:"modification_time"`
		DeletionTime     *time.Time `json:"deletion_time"`
		Hash             string     `json:"hash_value"`
		EventType        EventType  `json:"event_type"`
		EventTime        *time.Time `json:"event_time"`
		RenamedFrom      string     `json:"renamed_from,omitempty"`
		RenamedTo        string     `json:"renamed_to,omitempty"`
		User             string     `json:"user"`
		Role             Role       `json:"role"`
	}
)

// Deleted reports whether the record marks the file as removed.
func (r FileRecord) Deleted() bool {
	return r.DeletionTime.Valid
}

// Renamed builds the event recorded when oldName is moved to newName.
func Renamed(at time.Time, oldName, newName string) Event {
	return Event{Type: EventRenamed, Time: at, RenamedFrom: oldName, RenamedTo: newName}
}

// Description renders the event the way operators read it in the log.
func (e Event) Description() string {
	if e.Type == EventRenamed {
		return "Renamed from " + e.RenamedFrom + " to " + e.RenamedTo
	}
	return string(e.Type)
}

func NullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
