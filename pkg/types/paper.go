// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"slices"
	"strings"
	"unicode"
)

// PublishedLayout is the layout of PaperRecord.Published.
const PublishedLayout = "2006-01-02"

// PaperRecord holds the metadata stored for one paper within a topic.
// The ID is the map key in the on-disk topic file, so it is not serialized
// as a JSON field.
type PaperRecord struct {
	// ID is the stable external identifier (arXiv short id, e.g. "2301.07041").
	ID string `json:"-" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Summary is the paper abstract.
	Summary string `json:"summary" yaml:"summary"`

	// PDFURL links to the paper PDF.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Published is the publication date formatted as YYYY-MM-DD.
	Published string `json:"published" yaml:"published"`
}

// TopicPapers maps paper ID to record for a single topic.
type TopicPapers map[string]PaperRecord

// IDs returns the paper IDs in the topic, sorted.
func (p TopicPapers) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Slug derives the topic slug used as directory name and resource key:
// the topic is lower-cased and each whitespace character becomes an
// underscore. Slug(Slug(x)) == Slug(x).
func Slug(topic string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, strings.ToLower(topic))
}
