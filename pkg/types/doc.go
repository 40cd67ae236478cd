// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for research-agent: paper
// records and topic slugs persisted by the paper store, the conversation
// message model exchanged with the LLM, tool descriptors advertised by the
// capability server, and component configuration.
package types
