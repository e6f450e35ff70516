// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library maintains a browsable SQLite index of every collected
// paper. The result cache remains the source of truth; the library is a
// derived full-text index over titles and summaries, rebuilt incrementally
// by Sync.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-agent/internal/cache"
	"github.com/pdiddy/paper-agent/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "library.db"

	// collectedAtLayout keeps fixed-width fractional seconds so the TEXT
	// column sorts chronologically under lexicographic comparison.
	collectedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store manages the library SQLite database.
type Store struct {
	db         *sql.DB
	storageDir string
	maxResults int
}

// Paper is one indexed entry.
type Paper struct {
	Key             string    `json:"key"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	DOI             string    `json:"doi,omitempty"`
	ArxivID         string    `json:"arxiv_id,omitempty"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	SearchEngine    string    `json:"search_engine,omitempty"`
	SummaryPath     string    `json:"summary_path,omitempty"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Label renders the one-line listing form: "[id] title | MM/DD HH:MM".
func (p Paper) Label() string {
	id := p.ArxivID
	if id == "" {
		id = p.Key
	}
	return fmt.Sprintf("[%s] %s | %s", id, p.Title, p.CollectedAt.Format("01/02 15:04"))
}

// Open opens or creates the library database at storageDir/index/library.db.
func Open(storageDir string, maxResults int) (*Store, error) {
	dbDir := filepath.Join(storageDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, storageDir: storageDir, maxResults: maxResults}
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
		`CREATE TABLE IF NOT EXISTS papers (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			title TEXT,
			authors TEXT,
			publication_year INTEGER,
			doi TEXT,
			arxiv_id TEXT,
			pdf_url TEXT,
			search_engine TEXT,
			summary_path TEXT,
			summary TEXT,
			collected_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_arxiv_id ON papers(arxiv_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE papers_fts USING fts5(title, summary, content=papers, content_rowid=rowid)`,
			`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
				INSERT INTO papers_fts(rowid, title, summary) VALUES (new.rowid, new.title, new.summary);
			END`,
			`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, summary) VALUES('delete', old.rowid, old.title, old.summary);
			END`,
			`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
				INSERT INTO papers_fts(papers_fts, rowid, title, summary) VALUES('delete', old.rowid, old.title, old.summary);
				INSERT INTO papers_fts(rowid, title, summary) VALUES (new.rowid, new.title, new.summary);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// SyncSummary holds counts from an index rebuild.
type SyncSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of cache entries processed.
func (s SyncSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Sync brings the index up to date with the result cache. Entries whose
// collected_at matches the indexed value are skipped; new and changed
// entries are (re)indexed, pulling in the summary text when the file
// exists.
func (s *Store) Sync(ctx context.Context, c *cache.Cache) (SyncSummary, error) {
	entries, err := c.All()
	if err != nil {
		return SyncSummary{}, fmt.Errorf("reading result cache: %w", err)
	}

	var summary SyncSummary
	for key, entry := range entries {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		collectedAt := entry.CollectedAt.UTC().Format(collectedAtLayout)

		var storedCollectedAt string
		err := s.db.QueryRowContext(ctx,
			`SELECT collected_at FROM papers WHERE key = ?`, key,
		).Scan(&storedCollectedAt)
		isUpdate := err == nil
		if isUpdate && storedCollectedAt == collectedAt {
			summary.Skipped++
			continue
		}

		summaryText := ""
		if entry.SummaryPath != "" {
			if data, err := os.ReadFile(filepath.Join(s.storageDir, entry.SummaryPath)); err == nil {
				summaryText = string(data)
			}
		}

		if err := s.upsert(ctx, key, entry, summaryText, collectedAt); err != nil {
			summary.Failed++
			continue
		}
		if isUpdate {
			summary.Updated++
		} else {
			summary.Indexed++
		}
	}
	return summary, nil
}

func (s *Store) upsert(ctx context.Context, key string, entry types.CacheEntry, summaryText, collectedAt string) error {
	authorsJSON, _ := json.Marshal(entry.Authors)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (key, title, authors, publication_year, doi, arxiv_id, pdf_url, search_engine, summary_path, summary, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			title=excluded.title, authors=excluded.authors,
			publication_year=excluded.publication_year, doi=excluded.doi,
			arxiv_id=excluded.arxiv_id, pdf_url=excluded.pdf_url,
			search_engine=excluded.search_engine, summary_path=excluded.summary_path,
			summary=excluded.summary, collected_at=excluded.collected_at`,
		key, entry.Title, string(authorsJSON), entry.PublicationYear, entry.DOI,
		entry.ArxivID, entry.PDFURL, entry.SearchEngine, entry.SummaryPath,
		summaryText, collectedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting paper %s: %w", key, err)
	}
	return nil
}

// List returns indexed papers, newest first.
func (s *Store) List(ctx context.Context) ([]Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, authors, publication_year, doi, arxiv_id, pdf_url, search_engine, summary_path, collected_at
		 FROM papers ORDER BY collected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// Search runs a full-text query over titles and summaries, ranked by
// relevance.
func (s *Store) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.key, p.title, p.authors, p.publication_year, p.doi, p.arxiv_id, p.pdf_url, p.search_engine, p.summary_path, p.collected_at
		 FROM papers_fts
		 JOIN papers p ON p.rowid = papers_fts.rowid
		 WHERE papers_fts MATCH ?
		 ORDER BY papers_fts.rank
		 LIMIT ?`, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("searching papers: %w", err)
	}
	defer rows.Close()
	return scanPapers(rows)
}

// Show returns the paper matching id (an arXiv ID or a normalized title
// key) along with its summary text, if any.
func (s *Store) Show(ctx context.Context, id string) (*Paper, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, title, authors, publication_year, doi, arxiv_id, pdf_url, search_engine, summary_path, collected_at, summary
		 FROM papers WHERE arxiv_id = ? OR key = ? LIMIT 1`, id, cache.NormalizeTitle(id))

	var p Paper
	var authorsJSON, collectedAt, summaryText sql.NullString
	err := row.Scan(&p.Key, &p.Title, &authorsJSON, &p.PublicationYear, &p.DOI,
		&p.ArxivID, &p.PDFURL, &p.SearchEngine, &p.SummaryPath, &collectedAt, &summaryText)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("paper %q not found in library", id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading paper: %w", err)
	}
	finishPaper(&p, authorsJSON, collectedAt)
	return &p, summaryText.String, nil
}

func scanPapers(rows *sql.Rows) ([]Paper, error) {
	var papers []Paper
	for rows.Next() {
		var p Paper
		var authorsJSON, collectedAt sql.NullString
		if err := rows.Scan(&p.Key, &p.Title, &authorsJSON, &p.PublicationYear, &p.DOI,
			&p.ArxivID, &p.PDFURL, &p.SearchEngine, &p.SummaryPath, &collectedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		finishPaper(&p, authorsJSON, collectedAt)
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

func finishPaper(p *Paper, authorsJSON, collectedAt sql.NullString) {
	if authorsJSON.Valid {
		json.Unmarshal([]byte(authorsJSON.String), &p.Authors)
	}
	if collectedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, collectedAt.String); err == nil {
			p.CollectedAt = t
		}
	}
}
