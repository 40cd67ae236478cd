// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownBlockType is returned when a content block carries a type tag
// other than text, tool_use, or tool_result.
var ErrUnknownBlockType = errors.New("unknown content block type")

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content block type tags used in the JSON form.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one unit of model or tool output. The set of
// implementations is closed: TextBlock, ToolUseBlock, ToolResultBlock.
type ContentBlock interface {
	// BlockType returns the JSON type tag of the block.
	BlockType() string
	contentBlock()
}

// TextBlock is plain text emitted by the user or the model.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a model request to invoke a tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock carries the output of one tool invocation back to the
// model, correlated by the originating ToolUseBlock ID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) BlockType() string       { return BlockText }
func (ToolUseBlock) BlockType() string    { return BlockToolUse }
func (ToolResultBlock) BlockType() string { return BlockToolResult }

func (TextBlock) contentBlock()       {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}

// Message is one entry of a conversation. Block order is the order in which
// the blocks were emitted.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserText returns a user message holding a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// ToolUses returns the tool-use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Content {
		if u, ok := b.(ToolUseBlock); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

type messageJSON struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// MarshalJSON encodes the message with a type tag on each block.
func (m Message) MarshalJSON() ([]byte, error) {
	raw := messageJSON{Role: m.Role, Content: make([]json.RawMessage, 0, len(m.Content))}
	for i, b := range m.Content {
		data, err := MarshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		raw.Content = append(raw.Content, data)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a message, rejecting unknown block types.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role != RoleUser && raw.Role != RoleAssistant {
		return fmt.Errorf("invalid message role %q", raw.Role)
	}
	blocks := make([]ContentBlock, 0, len(raw.Content))
	for i, c := range raw.Content {
		b, err := UnmarshalBlock(c)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	m.Role = raw.Role
	m.Content = blocks
	return nil
}

// MarshalBlock encodes a single content block with its type tag.
func MarshalBlock(b ContentBlock) ([]byte, error) {
	switch v := b.(type) {
	case TextBlock:
		return json.Marshal(struct {
			Type string `json:"type"`
			TextBlock
		}{BlockText, v})
	case ToolUseBlock:
		if len(v.Input) == 0 {
			v.Input = json.RawMessage(`{}`)
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			ToolUseBlock
		}{BlockToolUse, v})
	case ToolResultBlock:
		return json.Marshal(struct {
			Type string `json:"type"`
			ToolResultBlock
		}{BlockToolResult, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownBlockType, b)
	}
}

// UnmarshalBlock decodes a single tagged content block.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case BlockText:
		var b TextBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockToolUse:
		var b ToolUseBlock
		err := json.Unmarshal(data, &b)
		return b, err
	case BlockToolResult:
		var b ToolResultBlock
		err := json.Unmarshal(data, &b)
		return b, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, tag.Type)
	}
}

// ToolDescriptor advertises a tool to the model: its name, what it does,
// and the JSON schema of its arguments.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema" yaml:"input_schema"`
}
