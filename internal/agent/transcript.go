// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pdiddy/research-agent/pkg/types"
)

// TranscriptEntry is one line of a chat transcript.
type TranscriptEntry struct {
	Conversation string        `json:"conversation"`
	Message      types.Message `json:"message"`
}

// ReadTranscript returns the last conversation recorded in r, or nil when
// r holds no entries. Blocks with unknown type tags are an error.
func ReadTranscript(r io.Reader) (*Conversation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var conv *Conversation
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e TranscriptEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", line, err)
		}
		if conv == nil || conv.ID != e.Conversation {
			conv = &Conversation{ID: e.Conversation}
		}
		conv.append(e.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return conv, nil
}
