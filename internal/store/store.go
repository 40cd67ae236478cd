// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists paper records as one JSON file per topic under a
// papers root:
//
//	<root>/<slug>/papers_info.json
//
// Each file maps paper ID to record. Searches merge new records into the
// topic file; lookups scan topics in lexicographic slug order, optionally
// short-circuited by a SQLite index of paper ID to topic.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

// StoreFile is the name of the per-topic store file.
const StoreFile = "papers_info.json"

var (
	// ErrNotFound is returned by Lookup when no topic holds the paper.
	ErrNotFound = errors.New("paper not found")

	// ErrNoPapers is returned when a topic has no store file.
	ErrNoPapers = errors.New("no papers for topic")

	// ErrCorruptStore is returned when a store file cannot be decoded.
	ErrCorruptStore = errors.New("corrupt paper store")

	// ErrInvalidTopic is returned for topics whose slug cannot name a
	// directory under the papers root.
	ErrInvalidTopic = errors.New("invalid topic")
)

// Store manages the topic files under a papers root.
type Store struct {
	root    string
	backend search.Backend
	index   *Index
	log     *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithIndex attaches a paper-id index that Search keeps current and
// Lookup consults before scanning.
func WithIndex(idx *Index) Option {
	return func(s *Store) { s.index = idx }
}

// New returns a store rooted at root. The backend is only needed by Search.
func New(root string, backend search.Backend, opts ...Option) *Store {
	s := &Store{
		root:    root,
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("store")
	return s
}

// Root returns the papers root directory.
func (s *Store) Root() string { return s.root }

// Search fetches up to maxResults papers on topic from the search backend,
// merges them into the topic file, and returns the IDs fetched by this call
// in relevance order. A missing or unparsable topic file is treated as
// empty and overwritten with the merged result; any other read failure is
// returned and the file is left alone.
func (s *Store) Search(ctx context.Context, topic string, maxResults int) ([]string, error) {
	slug, err := checkSlug(types.Slug(topic))
	if err != nil {
		return nil, err
	}

	records, err := search.Fetch(ctx, s.backend, topic, maxResults)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", topic, err)
	}

	papers, err := s.Load(slug)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoPapers):
		s.log.Debug("starting new topic store", zap.String("topic", slug))
		papers = types.TopicPapers{}
	case errors.Is(err, ErrCorruptStore):
		s.log.Warn("discarding unparsable topic store", zap.String("topic", slug), zap.Error(err))
		papers = types.TopicPapers{}
	default:
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.Authors == nil {
			r.Authors = []string{}
		}
		papers[r.ID] = r
		ids = append(ids, r.ID)
	}

	if err := s.Save(slug, papers); err != nil {
		return nil, err
	}
	s.log.Info("saved search results",
		zap.String("topic", slug),
		zap.Int("fetched", len(ids)),
		zap.Int("stored", len(papers)),
		zap.String("path", s.topicFile(slug)))

	if s.index != nil {
		if err := s.indexTopic(ctx, slug, papers); err != nil {
			s.log.Warn("updating paper index", zap.String("topic", slug), zap.Error(err))
		}
	}
	return ids, nil
}

// Lookup finds a paper by ID across all topics. When several topics hold
// the ID, the lexicographically first slug wins. Unreadable topic files are
// skipped. Returns ErrNotFound when no topic holds the ID.
func (s *Store) Lookup(ctx context.Context, id string) (types.PaperRecord, string, error) {
	if s.index != nil {
		rec, slug, err := s.lookupIndexed(ctx, id)
		switch {
		case err == nil:
			return rec, slug, nil
		case errors.Is(err, ErrNotFound):
			return types.PaperRecord{}, "", err
		default:
			s.log.Warn("paper index unusable, scanning topics", zap.String("id", id), zap.Error(err))
		}
	}
	return s.scan(id)
}

// scan reads every topic file in slug order.
func (s *Store) scan(id string) (types.PaperRecord, string, error) {
	slugs, err := s.ListTopics()
	if err != nil {
		return types.PaperRecord{}, "", err
	}
	for _, slug := range slugs {
		papers, err := s.Load(slug)
		if err != nil {
			s.log.Warn("skipping topic store", zap.String("topic", slug), zap.Error(err))
			continue
		}
		if rec, ok := papers[id]; ok {
			return rec, slug, nil
		}
	}
	return types.PaperRecord{}, "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ListTopics returns the sorted slugs of subdirectories holding a store
// file. Directories without one, and hidden directories, are excluded. A
// missing root yields no topics.
func (s *Store) ListTopics() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading papers directory %s: %w", s.root, err)
	}

	var slugs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := os.Stat(s.topicFile(entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		slugs = append(slugs, entry.Name())
	}
	return slugs, nil
}

// ListPapers loads every paper stored for topic. A topic without a store
// file yields ErrNoPapers.
func (s *Store) ListPapers(topic string) (types.TopicPapers, error) {
	slug, err := checkSlug(types.Slug(topic))
	if err != nil {
		return nil, err
	}
	return s.Load(slug)
}

// Load reads the store file for slug.
func (s *Store) Load(slug string) (types.TopicPapers, error) {
	path := s.topicFile(slug)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoPapers, slug)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var papers types.TopicPapers
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptStore, path, err)
	}
	if papers == nil {
		papers = types.TopicPapers{}
	}
	for id, rec := range papers {
		rec.ID = id
		papers[id] = rec
	}
	return papers, nil
}

// Save writes papers as the complete store for slug. The file is written
// to a temporary sibling and renamed into place, so readers never observe
// a partial write.
func (s *Store) Save(slug string, papers types.TopicPapers) error {
	slug, err := checkSlug(slug)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating topic directory: %w", err)
	}

	if papers == nil {
		papers = types.TopicPapers{}
	}
	data, err := json.MarshalIndent(papers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", slug, err)
	}
	return writeFileAtomic(s.topicFile(slug), data)
}

func (s *Store) topicFile(slug string) string {
	return filepath.Join(s.root, slug, StoreFile)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// checkSlug rejects slugs that would escape the papers root or collide
// with hidden directories such as the index.
func checkSlug(slug string) (string, error) {
	switch {
	case slug == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidTopic)
	case strings.HasPrefix(slug, "."):
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, slug)
	case strings.ContainsAny(slug, `/\`):
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, slug)
	}
	return slug, nil
}
