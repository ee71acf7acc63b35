package anthropic

import "encoding/json"

// Message is one entry of AnthropicRequest.Messages.
type Message struct {
	Role    string          `json:"role"` // "user" | "assistant"
	Content FlexibleContent `json:"content"`
}

// Tool is one entry of AnthropicRequest.Tools.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice mirrors the caller-supplied tool_choice, which may be a
// bare string ("auto"/"any"/"none") or an object ({"type":"tool","name":...}).
type ToolChoice struct {
	IsString bool
	String   string
	Type     string
	Name     string
}

func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.IsString = true
		c.String = s
		return nil
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Type, c.Name = obj.Type, obj.Name
	return nil
}

func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.IsString {
		return json.Marshal(c.String)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}{c.Type, c.Name})
}

// Thinking carries the caller's extended-thinking request, e.g.
// {"type":"enabled"} (spec.md §4.7 "thinking → reasoning").
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Request is AnthropicRequest, the inbound shape at /v1/messages
// (spec.md §3).
type Request struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        json.RawMessage `json:"system,omitempty"` // string or []ContentBlock; decoded lazily, see SystemText
	MaxTokens     int64           `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *Thinking       `json:"thinking,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

// SystemText concatenates the system prompt's text blocks with "\n",
// accepting either a plain string or an ordered list of text blocks
// (spec.md §3, §4.7).
func (r *Request) SystemText() (string, error) {
	if len(r.System) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(r.System, &s); err == nil {
		return s, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(r.System, &blocks); err != nil {
		return "", err
	}
	out := ""
	for i, b := range blocks {
		if b.Type != BlockText {
			continue
		}
		if i > 0 && out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out, nil
}

// SetSystemText replaces the system prompt with a single string block,
// used after RequestRewriter's reserved-header strip.
func (r *Request) SetSystemText(text string) {
	b, _ := json.Marshal(text)
	r.System = b
}

// Usage is the token-accounting envelope on both requests' estimates
// and responses' actuals.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a complete (non-streaming) Anthropic response object.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // "message"
	Role         string         `json:"role"` // "assistant"
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ErrorDetail is the {type, message} pair inside an error envelope.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorEnvelope is the {type:"error", error:{...}} body spec.md §7
// requires for every client-facing failure.
type ErrorEnvelope struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// NewError builds an ErrorEnvelope.
func NewError(errType, message string) ErrorEnvelope {
	return ErrorEnvelope{Type: "error", Error: ErrorDetail{Type: errType, Message: message}}
}

// Error-type constants used by the HTTP-status mapping table
// (grounded in other_examples/.../translator/anthropic_openai.go's
// analogous status→type table).
const (
	ErrTypeInvalidRequest     = "invalid_request_error"
	ErrTypeAuthentication     = "authentication_error"
	ErrTypePermission         = "permission_error"
	ErrTypeNotFound           = "not_found_error"
	ErrTypeRequestTooLarge    = "request_too_large"
	ErrTypeRateLimit          = "rate_limit_error"
	ErrTypeAPIError           = "api_error"
	ErrTypeInternal           = "internal_server_error"
	ErrTypeOverloaded         = "overloaded_error"
	ErrTypeServiceUnavailable = "service_unavailable_error"
)

// ErrorTypeForStatus maps an upstream HTTP status to an Anthropic
// error type, for UpstreamTransport failures (spec.md §7).
func ErrorTypeForStatus(status int) string {
	switch status {
	case 400:
		return ErrTypeInvalidRequest
	case 401:
		return ErrTypeAuthentication
	case 403:
		return ErrTypePermission
	case 404:
		return ErrTypeNotFound
	case 413:
		return ErrTypeRequestTooLarge
	case 429:
		return ErrTypeRateLimit
	case 500:
		return ErrTypeInternal
	case 503:
		return ErrTypeServiceUnavailable
	case 529:
		return ErrTypeOverloaded
	default:
		if status >= 500 {
			return ErrTypeInternal
		}
		return ErrTypeAPIError
	}
}
