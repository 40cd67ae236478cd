// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	indexDir = ".index"
	dbFile   = "papers.db"
)

// Index maps paper IDs to the topics that hold them. It is a cache over the
// topic files: the files stay authoritative and every hit is verified
// against them.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index database at root/.index/papers.db.
func OpenIndex(root string) (*Index, error) {
	dir := filepath.Join(root, indexDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return idx, nil
}

// Close releases the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

func (x *Index) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS topics (
			slug TEXT PRIMARY KEY,
			file_mod_time TEXT NOT NULL,
			file_size INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT NOT NULL,
			topic TEXT NOT NULL REFERENCES topics(slug) ON DELETE CASCADE,
			PRIMARY KEY (id, topic)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_id ON papers(id)`,
	}
	for _, stmt := range statements {
		if _, err := x.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// fileState identifies one version of a topic file.
type fileState struct {
	ModTime string
	Size    int64
}

func statTopicFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, err
	}
	return fileState{
		ModTime: info.ModTime().UTC().Format(time.RFC3339Nano),
		Size:    info.Size(),
	}, nil
}

// Topics returns the slugs indexed as holding id, in lexicographic order.
func (x *Index) Topics(ctx context.Context, id string) ([]string, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT topic FROM papers WHERE id = ? ORDER BY topic`, id)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func (x *Index) states(ctx context.Context) (map[string]fileState, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT slug, file_mod_time, file_size FROM topics`)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]fileState)
	for rows.Next() {
		var slug string
		var st fileState
		if err := rows.Scan(&slug, &st.ModTime, &st.Size); err != nil {
			return nil, fmt.Errorf("scanning topic row: %w", err)
		}
		out[slug] = st
	}
	return out, rows.Err()
}

// replaceTopic swaps the indexed IDs for slug in a single transaction.
func (x *Index) replaceTopic(ctx context.Context, slug string, ids []string, st fileState) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE topic = ?`, slug); err != nil {
		return fmt.Errorf("deleting old entries: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO topics (slug, file_mod_time, file_size) VALUES (?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET file_mod_time=excluded.file_mod_time, file_size=excluded.file_size`,
		slug, st.ModTime, st.Size)
	if err != nil {
		return fmt.Errorf("updating topic status: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO papers (id, topic) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, slug); err != nil {
			return fmt.Errorf("inserting %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (x *Index) dropTopic(ctx context.Context, slug string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM topics WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("dropping topic %s: %w", slug, err)
	}
	return nil
}

// Reset empties the index so the next refresh rebuilds it from scratch.
func (x *Index) Reset(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM topics`); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	return nil
}

// RefreshSummary holds counts from an index refresh.
type RefreshSummary struct {
	Indexed int
	Updated int
	Removed int
	Skipped int
	Failed  int
}

// Total returns the number of topics examined.
func (s RefreshSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// RefreshIndex brings the index in line with the topic files on disk.
// Topics whose file modification time or size changed are re-read, topics
// that disappeared are dropped, and unchanged topics are skipped. Progress
// lines go to w when it is non-nil.
func (s *Store) RefreshIndex(ctx context.Context, w io.Writer) (RefreshSummary, error) {
	if s.index == nil {
		return RefreshSummary{}, errors.New("no paper index configured")
	}
	if w == nil {
		w = io.Discard
	}

	known, err := s.index.states(ctx)
	if err != nil {
		return RefreshSummary{}, err
	}
	slugs, err := s.ListTopics()
	if err != nil {
		return RefreshSummary{}, err
	}

	var summary RefreshSummary
	for _, slug := range slugs {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		prev, seen := known[slug]
		delete(known, slug)

		st, err := statTopicFile(s.topicFile(slug))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", slug, err)
			summary.Failed++
			continue
		}
		if seen && prev == st {
			summary.Skipped++
			continue
		}

		papers, err := s.Load(slug)
		if err != nil {
			// Record the state anyway so a corrupt file is not re-read
			// until it changes.
			s.log.Warn("indexing topic store", zap.String("topic", slug), zap.Error(err))
			if ierr := s.index.replaceTopic(ctx, slug, nil, st); ierr != nil {
				return summary, ierr
			}
			fmt.Fprintf(w, "failed  %s: %v\n", slug, err)
			summary.Failed++
			continue
		}
		if err := s.index.replaceTopic(ctx, slug, papers.IDs(), st); err != nil {
			return summary, err
		}

		if seen {
			fmt.Fprintf(w, "updated %s (%d papers)\n", slug, len(papers))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s (%d papers)\n", slug, len(papers))
			summary.Indexed++
		}
	}

	for slug := range known {
		if err := s.index.dropTopic(ctx, slug); err != nil {
			return summary, err
		}
		fmt.Fprintf(w, "removed %s\n", slug)
		summary.Removed++
	}

	s.log.Debug("index refreshed",
		zap.Int("indexed", summary.Indexed),
		zap.Int("updated", summary.Updated),
		zap.Int("removed", summary.Removed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// RebuildIndex discards every index entry and re-reads all topic files.
func (s *Store) RebuildIndex(ctx context.Context, w io.Writer) (RefreshSummary, error) {
	if s.index == nil {
		return RefreshSummary{}, errors.New("no paper index configured")
	}
	if err := s.index.Reset(ctx); err != nil {
		return RefreshSummary{}, err
	}
	return s.RefreshIndex(ctx, w)
}

// indexTopic records a freshly written topic file.
func (s *Store) indexTopic(ctx context.Context, slug string, papers types.TopicPapers) error {
	st, err := statTopicFile(s.topicFile(slug))
	if err != nil {
		return err
	}
	return s.index.replaceTopic(ctx, slug, papers.IDs(), st)
}

// lookupIndexed refreshes the index, then verifies each candidate topic
// against its file. A candidate that fails verification means the index
// drifted, which is reported as an error so the caller falls back to a
// full scan.
func (s *Store) lookupIndexed(ctx context.Context, id string) (types.PaperRecord, string, error) {
	if _, err := s.RefreshIndex(ctx, nil); err != nil {
		return types.PaperRecord{}, "", err
	}
	slugs, err := s.index.Topics(ctx, id)
	if err != nil {
		return types.PaperRecord{}, "", err
	}
	if len(slugs) == 0 {
		return types.PaperRecord{}, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, slug := range slugs {
		papers, err := s.Load(slug)
		if err != nil {
			continue
		}
		if rec, ok := papers[id]; ok {
			return rec, slug, nil
		}
	}
	return types.PaperRecord{}, "", fmt.Errorf("index entry for %s did not match any topic file", id)
}
