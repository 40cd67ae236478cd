// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

// ExportFormat selects the encoding used by Export.
type ExportFormat string

const (
	ExportYAML ExportFormat = "yaml"
	ExportJSON ExportFormat = "json"
)

// ExportEntry is one paper in an export, tagged with the topic it came from.
type ExportEntry struct {
	Topic string `json:"topic" yaml:"topic"`
	types.PaperRecord `yaml:",inline"`
}

// exportRecord carries the ID into JSON, which the on-disk form keys by.
type exportRecord struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
	types.PaperRecord
}

// Export writes the papers of the given topics, or of every topic when
// none are named, as a flat list sorted by topic then paper ID.
func (s *Store) Export(w io.Writer, format ExportFormat, topics ...string) error {
	entries, err := s.exportEntries(topics)
	if err != nil {
		return err
	}

	switch format {
	case ExportYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case ExportJSON:
		out := make([]exportRecord, len(entries))
		for i, e := range entries {
			out[i] = exportRecord{Topic: e.Topic, ID: e.ID, PaperRecord: e.PaperRecord}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func (s *Store) exportEntries(topics []string) ([]ExportEntry, error) {
	var slugs []string
	if len(topics) == 0 {
		all, err := s.ListTopics()
		if err != nil {
			return nil, err
		}
		slugs = all
	} else {
		for _, t := range topics {
			slug, err := checkSlug(types.Slug(t))
			if err != nil {
				return nil, err
			}
			slugs = append(slugs, slug)
		}
	}

	entries := []ExportEntry{}
	for _, slug := range slugs {
		papers, err := s.Load(slug)
		if err != nil {
			if len(topics) > 0 {
				return nil, err
			}
			s.log.Warn("skipping topic in export", zap.String("topic", slug), zap.Error(err))
			continue
		}
		for _, id := range papers.IDs() {
			entries = append(entries, ExportEntry{Topic: slug, PaperRecord: papers[id]})
		}
	}
	return entries, nil
}
