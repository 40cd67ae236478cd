// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the literature search provider for papers on a
// topic. Results come back ranked by relevance as PaperRecords ready to be
// merged into the paper store.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Backend searches a single academic API.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, topic string, maxResults int) ([]types.PaperRecord, error)
}

// DefaultMaxResults is used when a caller asks for zero or fewer results.
const DefaultMaxResults = 5

// Fetch validates the request and delegates to the backend. It drops
// records without an ID and keeps the first occurrence of a repeated ID,
// so the result never holds duplicates.
func Fetch(ctx context.Context, b Backend, topic string, maxResults int) ([]types.PaperRecord, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("topic is empty")
	}
	if b == nil {
		return nil, fmt.Errorf("no search backend configured")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	records, err := b.Fetch(ctx, topic, maxResults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
