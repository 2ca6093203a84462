// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps every article delivered in a digest in a SQLite
// database so past digests can be searched without contacting PubMed.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// FileName is the archive database name inside the output directory.
const FileName = "archive.db"

const defaultMaxResults = 20

// Store is the article archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			pmid TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			journal TEXT NOT NULL,
			pub_date TEXT,
			doi TEXT,
			authors TEXT,
			abstract TEXT,
			run_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_run_date ON articles(run_date)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores the articles delivered on runDate. Re-recording an id
// updates its metadata but keeps the run it was first delivered in.
func (s *Store) Record(ctx context.Context, runDate string, articles []types.ArticleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO articles (pmid, title, journal, pub_date, doi, authors, abstract, run_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pmid) DO UPDATE SET
			title=excluded.title, journal=excluded.journal, pub_date=excluded.pub_date,
			doi=excluded.doi, authors=excluded.authors, abstract=excluded.abstract`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range articles {
		if a.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.Title, a.Journal, a.PubDate, a.DOI, a.Authors, a.Abstract, runDate,
		); err != nil {
			return fmt.Errorf("archiving %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// Query holds archive search parameters. Empty fields do not filter.
type Query struct {
	// Text matches title or abstract, case-insensitively.
	Text string

	// Journal matches the journal name exactly.
	Journal string

	// Since keeps articles delivered on or after this run date (YYYY-MM-DD).
	Since string

	// Max limits the result count. Zero uses 20.
	Max int
}

// Entry is an archived article and the run that delivered it.
type Entry struct {
	types.ArticleRecord `yaml:",inline"`
	RunDate             string `json:"run_date" yaml:"run_date"`
}

// Search returns archived articles matching q, newest run first.
func (s *Store) Search(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Max
	if limit <= 0 {
		limit = defaultMaxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT pmid, title, journal, pub_date, doi, authors, abstract, run_date
		FROM articles WHERE 1=1`)

	if q.Text != "" {
		qb.WriteString(` AND (title LIKE ? ESCAPE '\' OR abstract LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(q.Text) + "%"
		args = append(args, pattern, pattern)
	}
	if q.Journal != "" {
		qb.WriteString(` AND journal = ?`)
		args = append(args, q.Journal)
	}
	if q.Since != "" {
		qb.WriteString(` AND run_date >= ?`)
		args = append(args, q.Since)
	}

	qb.WriteString(` ORDER BY run_date DESC, journal, pub_date, title LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var pubDate, doi, authors, abstract sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Journal, &pubDate, &doi, &authors, &abstract, &e.RunDate,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.PubDate = pubDate.String
		e.DOI = doi.String
		e.Authors = authors.String
		e.Abstract = abstract.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of archived articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
