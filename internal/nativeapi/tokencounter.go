package nativeapi

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	anthropicwire "relay/internal/anthropic"
)

// charsPerToken and imageTokenChars implement the local fallback
// heuristic of spec.md §4.12: roughly 4 characters per token, with
// each image contributing a flat 4,000 characters.
const (
	charsPerToken   = 4
	imageTokenChars = 4000
)

// TokenCounter implements spec.md §4.12: proxy to the native
// upstream's typed count_tokens call when a native client is
// configured, falling back to the character-count heuristic on any
// upstream failure or when no native client exists. Unlike
// Passthrough, this path uses the typed anthropic-sdk-go client
// (SPEC_FULL.md §B) because it is a genuine request/response, not a
// byte-exact forward.
type TokenCounter struct {
	client  *anthropic.Client
	hasNative bool
}

// NewTokenCounter builds a TokenCounter backed by the native upstream
// at baseURL with the given access token and vendor headers. Pass an
// empty baseURL to disable the native path entirely (legacy-only mode).
func NewTokenCounter(baseURL, accessToken string, headers map[string]string) *TokenCounter {
	if baseURL == "" {
		return &TokenCounter{}
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(accessToken),
	}
	for k, v := range headers {
		if v == "" {
			continue
		}
		opts = append(opts, option.WithHeader(k, v))
	}
	client := anthropic.NewClient(opts...)
	return &TokenCounter{client: &client, hasNative: true}
}

// Count returns an estimated input token count for req. It tries the
// native upstream first (when configured), falling back to the local
// heuristic on any error — spec.md §4.12 treats this as best-effort,
// never a hard failure.
func (c *TokenCounter) Count(ctx context.Context, req *anthropicwire.Request) int64 {
	if c.hasNative {
		if n, err := c.countNative(ctx, req); err == nil {
			return n
		}
	}
	return c.countLocal(req)
}

func (c *TokenCounter) countNative(ctx context.Context, req *anthropicwire.Request) (int64, error) {
	params, err := buildCountTokensParams(req)
	if err != nil {
		return 0, err
	}
	result, err := c.client.Messages.CountTokens(ctx, params)
	if err != nil {
		return 0, err
	}
	return result.InputTokens, nil
}

// buildCountTokensParams converts the wire Request into the SDK's
// typed count_tokens params, covering text, tool_use, and tool_result
// content — the shapes a real coding-agent conversation actually
// sends. Other block types (images, documents, thinking) are simply
// omitted, a tool_use whose input fails to parse is sent with a null
// input, and a tool_result whose content is a part list is sent with
// empty text, rather than failing the whole count; the caller degrades
// to the local heuristic on any error from this path anyway.
func buildCountTokensParams(req *anthropicwire.Request) (anthropic.MessageCountTokensParams, error) {
	params := anthropic.MessageCountTokensParams{
		Model: anthropic.Model(req.Model),
	}

	systemText, err := req.SystemText()
	if err != nil {
		return params, err
	}
	if systemText != "" {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{
			OfTextBlockArray: []anthropic.TextBlockParam{{Text: systemText}},
		}
	}

	for _, msg := range req.Messages {
		blocks := msg.Content.AsBlocks()
		var parts []anthropic.ContentBlockParamUnion
		for _, b := range blocks {
			switch b.Type {
			case anthropicwire.BlockText:
				parts = append(parts, anthropic.NewTextBlock(b.Text))
			case anthropicwire.BlockToolUse:
				var input any
				if len(b.ToolUseInput) > 0 {
					_ = json.Unmarshal(b.ToolUseInput, &input)
				}
				parts = append(parts, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolUseName))
			case anthropicwire.BlockToolResult:
				text := b.ToolResultContent.String
				parts = append(parts, anthropic.NewToolResultBlock(b.ToolResultID, text, b.ToolResultIsError))
			}
		}
		if len(parts) == 0 {
			continue
		}
		switch msg.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(parts...))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(parts...))
		}
	}

	for _, tool := range req.Tools {
		var schema map[string]any
		if len(tool.InputSchema) > 0 {
			_ = json.Unmarshal(tool.InputSchema, &schema)
		}
		params.Tools = append(params.Tools, anthropic.MessageCountTokensToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}

	return params, nil
}

// countLocal implements spec.md §4.12's local heuristic: sum of
// character counts across system + messages + tools, divided by 4;
// each image contributes a fixed 4,000 characters.
func (c *TokenCounter) countLocal(req *anthropicwire.Request) int64 {
	var chars int64

	systemText, _ := req.SystemText()
	chars += int64(len(systemText))

	for _, msg := range req.Messages {
		for _, b := range msg.Content.AsBlocks() {
			switch b.Type {
			case anthropicwire.BlockText:
				chars += int64(len(b.Text))
			case anthropicwire.BlockImage:
				chars += imageTokenChars
			case anthropicwire.BlockDocument:
				chars += imageTokenChars
			case anthropicwire.BlockToolUse:
				chars += int64(len(b.ToolUseInput))
			case anthropicwire.BlockToolResult:
				if b.ToolResultContent.IsString {
					chars += int64(len(b.ToolResultContent.String))
				}
			case anthropicwire.BlockThinking:
				chars += int64(len(b.Thinking))
			}
		}
	}

	for _, tool := range req.Tools {
		chars += int64(len(tool.Name) + len(tool.Description) + len(tool.InputSchema))
	}

	return chars / charsPerToken
}
