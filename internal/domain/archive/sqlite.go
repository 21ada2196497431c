package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"familynest/internal/domain/story"
)

// SQLiteStore keeps each story as a JSON document keyed by ID.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(databasePath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
    CREATE TABLE IF NOT EXISTS stories (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        author TEXT,
        seq INTEGER NOT NULL,
        data TEXT NOT NULL
    );`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*story.Story, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM stories WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to query story %s: %w", id, err)
	}
	return decodeStory(data)
}

// Put inserts or replaces a story. A replaced story keeps its list position.
func (s *SQLiteStore) Put(ctx context.Context, st *story.Story) error {
	if st == nil || st.ID == "" {
		return errors.New("story must have an id")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode story %s: %w", st.ID, err)
	}

	query := `
    INSERT OR REPLACE INTO stories (id, title, author, seq, data)
    VALUES (?, ?, ?, COALESCE((SELECT seq FROM stories WHERE id = ?), (SELECT COALESCE(MAX(seq), 0) + 1 FROM stories)), ?);`

	if _, err := s.db.ExecContext(ctx, query, st.ID, st.Title, st.Author, st.ID, string(data)); err != nil {
		return fmt.Errorf("failed to save story %s: %w", st.ID, err)
	}
	logrus.WithFields(logrus.Fields{"id": st.ID, "title": st.Title}).Debug("Story saved to DB")
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*story.Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM stories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var out []*story.Story
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		st, err := decodeStory(data)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func decodeStory(data string) (*story.Story, error) {
	var st story.Story
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode story: %w", err)
	}
	return &st, nil
}
