// Package anthropic models the Anthropic Messages wire format: the
// inbound request shape, its tagged-union content blocks, the
// streaming SSE event vocabulary, and the error envelope. Grounded in
// spec.md §3/§9's "model as a tagged sum type ... single decode step
// that preserves source order" guidance, and in the request/response
// shapes the teacher's internal/llm/provider/anthropic.go builds by
// hand against the official anthropic-sdk-go types (this package
// hand-rolls the wire types instead, since NativePassthrough requires
// raw byte-exact passthrough that a typed SDK round-trip cannot
// guarantee).
package anthropic

import (
	"encoding/json"
	"fmt"
)

// BlockType enumerates the Anthropic content block discriminants.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockImage            BlockType = "image"
	BlockDocument         BlockType = "document"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockThinking         BlockType = "thinking"
	BlockRedactedThinking BlockType = "redacted_thinking"
)

// ImageSource is either a base64 payload or a remote URL.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolResultContent is tool_result.content, which may be a plain
// string or a list of typed parts (only "text" parts are meaningful
// for this gateway, per spec.md §4.7).
type ToolResultContent struct {
	IsString bool
	String   string
	Parts    []ContentBlock
}

func (t *ToolResultContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.IsString = true
		t.String = s
		return nil
	}
	var parts []ContentBlock
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("anthropic: tool_result.content neither string nor block list: %w", err)
	}
	t.Parts = parts
	return nil
}

func (t ToolResultContent) MarshalJSON() ([]byte, error) {
	if t.IsString {
		return json.Marshal(t.String)
	}
	return json.Marshal(t.Parts)
}

// ContentBlock is the tagged sum type
// Text | Image | Document | ToolUse | ToolResult | Thinking | RedactedThinking
// from spec.md §3/§9. A single UnmarshalJSON switches on "type" so
// that decoding a message's content list is one pass and source order
// is never lost — order governs tool-message interleaving (§4.7).
type ContentBlock struct {
	Type BlockType

	// Text / Thinking / RedactedThinking
	Text      string
	Thinking  string
	Signature string // thinking block signature, passed through opaque
	Data      string // redacted_thinking opaque payload

	// Image
	Source *ImageSource

	// Document
	DocumentSource *ImageSource

	// ToolUse
	ToolUseID    string
	ToolUseName  string
	ToolUseInput json.RawMessage

	// ToolResult
	ToolResultID      string
	ToolResultContent ToolResultContent
	ToolResultIsError bool
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("anthropic: decoding content block type: %w", err)
	}
	b.Type = head.Type

	switch head.Type {
	case BlockText:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Text = v.Text
	case BlockThinking:
		var v struct {
			Thinking  string `json:"thinking"`
			Signature string `json:"signature"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Thinking = v.Thinking
		b.Signature = v.Signature
	case BlockRedactedThinking:
		var v struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Data = v.Data
	case BlockImage:
		var v struct {
			Source ImageSource `json:"source"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.Source = &v.Source
	case BlockDocument:
		var v struct {
			Source ImageSource `json:"source"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.DocumentSource = &v.Source
	case BlockToolUse:
		var v struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ToolUseID, b.ToolUseName, b.ToolUseInput = v.ID, v.Name, v.Input
	case BlockToolResult:
		var v struct {
			ToolUseID string            `json:"tool_use_id"`
			Content   ToolResultContent `json:"content"`
			IsError   bool              `json:"is_error"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		b.ToolResultID, b.ToolResultContent, b.ToolResultIsError = v.ToolUseID, v.Content, v.IsError
	default:
		return fmt.Errorf("anthropic: unknown content block type %q", head.Type)
	}
	return nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockText:
		return json.Marshal(struct {
			Type BlockType `json:"type"`
			Text string    `json:"text"`
		}{b.Type, b.Text})
	case BlockThinking:
		return json.Marshal(struct {
			Type      BlockType `json:"type"`
			Thinking  string    `json:"thinking"`
			Signature string    `json:"signature,omitempty"`
		}{b.Type, b.Thinking, b.Signature})
	case BlockRedactedThinking:
		return json.Marshal(struct {
			Type BlockType `json:"type"`
			Data string    `json:"data"`
		}{b.Type, b.Data})
	case BlockImage:
		return json.Marshal(struct {
			Type   BlockType   `json:"type"`
			Source ImageSource `json:"source"`
		}{b.Type, *b.Source})
	case BlockDocument:
		return json.Marshal(struct {
			Type   BlockType   `json:"type"`
			Source ImageSource `json:"source"`
		}{b.Type, *b.DocumentSource})
	case BlockToolUse:
		return json.Marshal(struct {
			Type  BlockType       `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{b.Type, b.ToolUseID, b.ToolUseName, b.ToolUseInput})
	case BlockToolResult:
		return json.Marshal(struct {
			Type      BlockType         `json:"type"`
			ToolUseID string            `json:"tool_use_id"`
			Content   ToolResultContent `json:"content"`
			IsError   bool              `json:"is_error,omitempty"`
		}{b.Type, b.ToolResultID, b.ToolResultContent, b.ToolResultIsError})
	default:
		return nil, fmt.Errorf("anthropic: unknown content block type %q", b.Type)
	}
}

// FlexibleContent decodes messages[i].content, which may be a plain
// string or an ordered list of typed blocks (spec.md §3).
type FlexibleContent struct {
	IsString bool
	String   string
	Blocks   []ContentBlock
}

func (c *FlexibleContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.IsString = true
		c.String = s
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("anthropic: message content neither string nor block list: %w", err)
	}
	c.Blocks = blocks
	return nil
}

func (c FlexibleContent) MarshalJSON() ([]byte, error) {
	if c.IsString {
		return json.Marshal(c.String)
	}
	return json.Marshal(c.Blocks)
}

// AsBlocks normalizes to a block list regardless of source shape.
func (c FlexibleContent) AsBlocks() []ContentBlock {
	if c.IsString {
		if c.String == "" {
			return nil
		}
		return []ContentBlock{{Type: BlockText, Text: c.String}}
	}
	return c.Blocks
}
