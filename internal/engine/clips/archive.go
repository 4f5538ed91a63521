package clips

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// The archive records every generated clip set in a local SQLite database so
// repeated requests for the same video can be served and audited without
// re-running extraction or the LLM.

var (
	archiveDB   *sql.DB
	archiveOnce sync.Once
	archiveErr  error
	archivePath string
)

// SetArchivePath overrides the archive location. Must be called before the
// first archive operation; later calls have no effect.
func SetArchivePath(path string) { archivePath = path }

// openArchiveDB opens (or creates) the SQLite clip archive.
func openArchiveDB() (*sql.DB, error) {
	archiveOnce.Do(func() {
		path := archivePath
		if path == "" {
			dir := filepath.Join(os.Getenv("HOME"), ".go_clips")
			if err := os.MkdirAll(dir, 0750); err != nil {
				archiveErr = fmt.Errorf("archive: mkdir %s: %w", dir, err)
				return
			}
			path = filepath.Join(dir, "archive.db")
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			archiveErr = fmt.Errorf("archive: open db: %w", err)
			return
		}
		db.SetMaxOpenConns(1) // SQLite: single writer
		if err := initArchiveSchema(db); err != nil {
			archiveErr = fmt.Errorf("archive: init schema: %w", err)
			return
		}
		archiveDB = db
	})
	return archiveDB, archiveErr
}

// initArchiveSchema creates the clips table if it doesn't exist.
func initArchiveSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS clips (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id    TEXT NOT NULL,
		video_title TEXT,
		start_sec   REAL NOT NULL,
		end_sec     REAL NOT NULL,
		title       TEXT,
		description TEXT,
		key_quote   TEXT,
		score       REAL,
		fallback    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_clips_video ON clips (video_id)`)
	return err
}

// ArchivedClip is one stored clip row.
type ArchivedClip struct {
	ID         int64  `json:"id"`
	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title,omitempty"`
	Clip
	CreatedAt string `json:"created_at"`
}

// SaveClips stores one generated clip set.
func SaveClips(ctx context.Context, videoID, videoTitle string, set []Clip) error {
	db, err := openArchiveDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range set {
		fallback := 0
		if c.Fallback {
			fallback = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clips (video_id, video_title, start_sec, end_sec, title, description, key_quote, score, fallback, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			videoID, videoTitle, c.Start, c.End, c.Title, c.Description, c.KeyQuote, c.Score, fallback, now,
		); err != nil {
			return fmt.Errorf("archive: insert: %w", err)
		}
	}
	return tx.Commit()
}

// ListArchived returns stored clips for a video, newest first.
func ListArchived(ctx context.Context, videoID string, limit int) ([]ArchivedClip, error) {
	db, err := openArchiveDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, video_id, video_title, start_sec, end_sec, title, description, key_quote, score, fallback, created_at
		 FROM clips WHERE video_id = ? ORDER BY created_at DESC, start_sec ASC LIMIT ?`,
		videoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	var out []ArchivedClip
	for rows.Next() {
		var a ArchivedClip
		var videoTitle, title, desc, quote sql.NullString
		var score sql.NullFloat64
		var fallback int
		if err := rows.Scan(&a.ID, &a.VideoID, &videoTitle, &a.Start, &a.End,
			&title, &desc, &quote, &score, &fallback, &a.CreatedAt); err != nil {
			continue
		}
		a.VideoTitle = videoTitle.String
		a.Title = title.String
		a.Description = desc.String
		a.KeyQuote = quote.String
		a.Score = score.Float64
		a.Duration = a.End - a.Start
		a.Fallback = fallback != 0
		out = append(out, a)
	}
	if out == nil {
		out = []ArchivedClip{}
	}
	return out, rows.Err()
}
