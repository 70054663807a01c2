package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CatalogStore is the shared connection pool to the course and question-bank tables.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore opens the catalog database. With readOnly set every pooled
// connection runs with PRAGMA query_only, so tool queries cannot write.
func NewCatalogStore(dataSourceName string, readOnly bool) (*CatalogStore, error) {
	dsn := dataSourceName
	if readOnly {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_query_only=true"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}
	return &CatalogStore{db: db}, nil
}

func (s *CatalogStore) Close() error {
	return s.db.Close()
}

// QueryRows runs a single statement and returns every row as column -> value.
// []byte values are returned as strings.
func (s *CatalogStore) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog rows: %w", err)
	}
	return result, nil
}

// Exec runs a write statement. Used to seed local catalogs; fails on a read-only store.
func (s *CatalogStore) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute catalog statement: %w", err)
	}
	return nil
}

// InitSchema creates any missing catalog tables.
func (s *CatalogStore) InitSchema(ctx context.Context) error {
	return s.Exec(ctx, CatalogSchema)
}

// CatalogSchema mirrors the LMS tables the chat tools read.
const CatalogSchema = `
CREATE TABLE IF NOT EXISTS courses_course (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    short_description TEXT,
    description TEXT,
    requirements TEXT,
    duration TEXT,
    price REAL,
    discount REAL,
    total_reviews INTEGER,
    total_video_duration TEXT,
    total_questions INTEGER,
    avg_rating REAL,
    objectives_summary TEXT,
    features TEXT,
    status BOOLEAN DEFAULT TRUE,
    image TEXT,
    banner_image TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    assessment_test_testlet TEXT,
    assessment_test_each TEXT,
    mock_test_pattern TEXT
);

CREATE TABLE IF NOT EXISTS courses_subjects (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    status BOOLEAN DEFAULT TRUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    no_of_mcqs INTEGER,
    no_of_simulations INTEGER,
    no_of_videos INTEGER,
    no_of_videos_duration TEXT,
    total_questions INTEGER
);

CREATE TABLE IF NOT EXISTS courses_coursesubjects (
    id INTEGER PRIMARY KEY,
    course_id INTEGER NOT NULL REFERENCES courses_course (id),
    subject_id INTEGER NOT NULL REFERENCES courses_subjects (id),
    "order" INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS courses_chapters (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    no_of_videos INTEGER,
    no_of_videos_dur TEXT,
    no_of_mcqs INTEGER,
    no_of_simulations INTEGER,
    total_questions INTEGER,
    status BOOLEAN DEFAULT TRUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS courses_subjectchapters (
    id INTEGER PRIMARY KEY,
    subject_id INTEGER NOT NULL REFERENCES courses_subjects (id),
    chapter_id INTEGER NOT NULL REFERENCES courses_chapters (id),
    "order" INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS courses_topics (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT
);

CREATE TABLE IF NOT EXISTS courses_chaptertopics (
    id INTEGER PRIMARY KEY,
    chapter_id INTEGER NOT NULL REFERENCES courses_chapters (id),
    topic_id INTEGER NOT NULL REFERENCES courses_topics (id),
    "order" INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions_testquestions (
    id INTEGER PRIMARY KEY,
    id_number TEXT,
    question_type TEXT,
    level TEXT,
    simulation_type TEXT,
    chapter_id INTEGER,
    topic_id INTEGER,
    right_option_id INTEGER,
    status BOOLEAN DEFAULT TRUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions_questioncontents (
    id INTEGER PRIMARY KEY,
    test_question_id INTEGER NOT NULL REFERENCES questions_testquestions (id),
    question TEXT,
    solution_description TEXT,
    sub_questions TEXT
);

CREATE TABLE IF NOT EXISTS questions_questionoptions (
    id INTEGER PRIMARY KEY,
    test_question_id INTEGER NOT NULL REFERENCES questions_testquestions (id),
    option TEXT
);
`
