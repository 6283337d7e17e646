// ABOUTME: SQLite-backed media library store
// ABOUTME: Albums and tracks with batched transactional inserts
package library

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// commitBatchSize bounds how many pending inserts ride one transaction
// before it is committed.
const commitBatchSize = 64

const schema = `
CREATE TABLE IF NOT EXISTS albums (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	name   TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	year   INTEGER NOT NULL DEFAULT 0,
	cover  TEXT NOT NULL DEFAULT '',
	UNIQUE (name, artist)
);

CREATE TABLE IF NOT EXISTS tracks (
	id       TEXT PRIMARY KEY,
	album_id INTEGER NOT NULL REFERENCES albums(id),
	path     TEXT NOT NULL UNIQUE,
	title    TEXT NOT NULL,
	artist   TEXT NOT NULL DEFAULT '',
	track    INTEGER NOT NULL DEFAULT 0
);
`

// Album is one album row.
type Album struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Artist string `db:"artist"`
	Year   int    `db:"year"`
	Cover  string `db:"cover"`
}

// Track is one playable file row.
type Track struct {
	ID      string `db:"id"`
	AlbumID int64  `db:"album_id"`
	Path    string `db:"path"`
	Title   string `db:"title"`
	Artist  string `db:"artist"`
	Track   int    `db:"track"`
}

// Store wraps the library database.
type Store struct {
	db      *sqlx.DB
	tx      *sqlx.Tx
	pending int
}

// Open connects to (or creates) the library database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init library schema: %w", err)
	}
	return &Store{db: db}, nil
}

// EnsureAlbum finds an album by name and artist or inserts it, returning
// its id either way.
func (s *Store) EnsureAlbum(name, artist string) (int64, error) {
	var id int64
	err := s.db.Get(&id, `SELECT id FROM albums WHERE name = ? AND artist = ?`, name, artist)
	if err == nil {
		return id, nil
	}

	err = s.db.Get(&id,
		`INSERT INTO albums (name, artist) VALUES (?, ?) RETURNING id`, name, artist)
	if err != nil {
		return 0, fmt.Errorf("insert album %q: %w", name, err)
	}
	return id, nil
}

// AddTrack inserts or refreshes one track inside the running batch
// transaction, committing every commitBatchSize rows. Callers finish with
// Flush.
func (s *Store) AddTrack(t Track) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	if s.tx == nil {
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("begin batch: %w", err)
		}
		s.tx = tx
	}

	_, err := s.tx.Exec(`
INSERT INTO tracks (id, album_id, path, title, artist, track)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (path) DO UPDATE SET
	album_id = excluded.album_id,
	title    = excluded.title,
	artist   = excluded.artist,
	track    = excluded.track`,
		t.ID, t.AlbumID, t.Path, t.Title, t.Artist, t.Track)
	if err != nil {
		return fmt.Errorf("insert track %q: %w", t.Path, err)
	}

	s.pending++
	if s.pending >= commitBatchSize {
		return s.Flush()
	}
	return nil
}

// Flush commits the running batch, if any.
func (s *Store) Flush() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	s.pending = 0
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Albums lists all albums ordered by artist then name.
func (s *Store) Albums() ([]Album, error) {
	var albums []Album
	if err := s.db.Select(&albums, `SELECT * FROM albums ORDER BY artist, name`); err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	return albums, nil
}

// Tracks lists an album's tracks in track order.
func (s *Store) Tracks(albumID int64) ([]Track, error) {
	var tracks []Track
	err := s.db.Select(&tracks,
		`SELECT * FROM tracks WHERE album_id = ? ORDER BY track, title`, albumID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return tracks, nil
}

func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
