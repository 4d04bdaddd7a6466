// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package catalog maintains a persistent index of where events live, so that
// they can be read by offset without scanning their files.
package catalog

import (
	"context"
	"database/sql"

	"github.com/danjacques/gorawevent/protocol"

	"github.com/pkg/errors"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a catalog lookup has no match.
var ErrNotFound = errors.New("event not cataloged")

const schema = `
CREATE TABLE IF NOT EXISTS events (
	file TEXT NOT NULL,
	file_offset INTEGER NOT NULL,
	size INTEGER NOT NULL,
	run_number INTEGER NOT NULL,
	event_counter INTEGER NOT NULL,
	event_id INTEGER NOT NULL,
	bcid INTEGER NOT NULL,
	tag INTEGER NOT NULL,
	trigger_bits INTEGER NOT NULL,
	status INTEGER NOT NULL,
	PRIMARY KEY (file, file_offset)
);
CREATE INDEX IF NOT EXISTS events_by_counter ON events (run_number, event_counter);
`

// Entry is a cataloged event.
type Entry struct {
	// File is the name the event's file is read with.
	File string
	// Offset is the event's offset in File.
	Offset int64
	// Size is the event's encoded size.
	Size int64

	RunNumber    uint32
	EventCounter uint64
	EventID      uint64
	BCID         uint16
	Tag          protocol.EventTag
	TriggerBits  uint16
	Status       uint16
}

// EntryFor builds the Entry for e, read from file at offset.
func EntryFor(file string, offset int64, e *protocol.Event) Entry {
	return Entry{
		File:         file,
		Offset:       offset,
		Size:         e.Size(),
		RunNumber:    e.RunNumber,
		EventCounter: e.EventCounter,
		EventID:      e.EventID,
		BCID:         e.BCID,
		Tag:          e.Tag,
		TriggerBits:  e.TriggerBits,
		Status:       e.Status,
	}
}

// Catalog is an event catalog backed by an SQLite database.
//
// It is safe for concurrent use.
type Catalog struct {
	db *sql.DB
}

// Open opens the catalog at path, creating it if necessary. The path
// ":memory:" opens a private in-memory catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening catalog %q", path)
	}
	// Each connection to ":memory:" is a separate database; SQLite serializes
	// writers regardless.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating catalog schema")
	}
	return &Catalog{db: db}, nil
}

// Close closes the catalog.
func (c *Catalog) Close() error { return c.db.Close() }

// Record adds entries to the catalog in a single transaction, replacing any
// existing entries at the same file and offset.
func (c *Catalog) Record(ctx context.Context, entries ...Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO events
		(file, file_offset, size, run_number, event_counter, event_id, bcid, tag, trigger_bits, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer stmt.Close()

	for _, ent := range entries {
		if _, err := stmt.ExecContext(ctx,
			ent.File, ent.Offset, ent.Size, int64(ent.RunNumber), int64(ent.EventCounter), int64(ent.EventID),
			int64(ent.BCID), int64(ent.Tag), int64(ent.TriggerBits), int64(ent.Status)); err != nil {
			return errors.Wrapf(err, "recording %q @%d", ent.File, ent.Offset)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing entries")
	}
	return nil
}

const selectEntry = `SELECT file, file_offset, size, run_number, event_counter, event_id, bcid, tag,
	trigger_bits, status FROM events`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		ent                                       Entry
		run, counter, id, bcid, tag, bits, status int64
	)
	if err := s.Scan(&ent.File, &ent.Offset, &ent.Size, &run, &counter, &id, &bcid, &tag, &bits, &status); err != nil {
		return Entry{}, err
	}
	ent.RunNumber = uint32(run)
	ent.EventCounter = uint64(counter)
	ent.EventID = uint64(id)
	ent.BCID = uint16(bcid)
	ent.Tag = protocol.EventTag(tag)
	ent.TriggerBits = uint16(bits)
	ent.Status = uint16(status)
	return ent, nil
}

// Lookup returns the entry for an event by run number and event counter.
//
// If the event was cataloged more than once, the first occurrence by file and
// offset is returned.
func (c *Catalog) Lookup(ctx context.Context, run uint32, counter uint64) (Entry, error) {
	row := c.db.QueryRowContext(ctx,
		selectEntry+` WHERE run_number = ? AND event_counter = ? ORDER BY file, file_offset LIMIT 1`,
		int64(run), int64(counter))
	ent, err := scanEntry(row)
	switch {
	case err == sql.ErrNoRows:
		return Entry{}, errors.Wrapf(ErrNotFound, "run %d event %d", run, counter)
	case err != nil:
		return Entry{}, errors.Wrap(err, "looking up event")
	default:
		return ent, nil
	}
}

// Entries returns every entry for file, ordered by offset.
func (c *Catalog) Entries(ctx context.Context, file string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntry+` WHERE file = ? ORDER BY file_offset`, file)
	if err != nil {
		return nil, errors.Wrap(err, "listing entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		ent, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "reading entry")
		}
		entries = append(entries, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing entries")
	}
	return entries, nil
}

// Offsets returns the cataloged event offsets in file, in ascending order.
func (c *Catalog) Offsets(ctx context.Context, file string) ([]int64, error) {
	entries, err := c.Entries(ctx, file)
	if err != nil {
		return nil, err
	}
	offsets := make([]int64, len(entries))
	for i, ent := range entries {
		offsets[i] = ent.Offset
	}
	return offsets, nil
}

// Files returns the names of every cataloged file, sorted.
func (c *Catalog) Files(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT file FROM events ORDER BY file`)
	if err != nil {
		return nil, errors.Wrap(err, "listing files")
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, errors.Wrap(err, "reading file")
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing files")
	}
	return files, nil
}
