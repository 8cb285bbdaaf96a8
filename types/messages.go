// Package types holds the neutral request/response model and the Adapter
// boundary shared between the router package and every per-provider
// adapter. It is deliberately dependency-free so adapters can import it
// without creating an import cycle back through the router package.
package types

// Role is the neutral chat-message role. Adapters translate it to each
// provider's own vocabulary (e.g. Cohere CHATBOT, Gemini "model").
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn in a neutral chat request.
type ChatMessage struct {
	Role    Role
	Content string
	Name    string // optional
}

// CompletionRequest is a single-prompt neutral request (spec.md §3).
type CompletionRequest struct {
	Prompt           string
	SystemMessage    string
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    []string
	Stream           bool
	PreferredBackend string
}

// ChatRequest is a multi-turn neutral request: the same optional fields as
// CompletionRequest, with an ordered message list in place of Prompt.
type ChatRequest struct {
	Messages         []ChatMessage
	SystemMessage    string
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    []string
	Stream           bool
	PreferredBackend string
}

// AsChat lowers a CompletionRequest to the single-user-message ChatRequest
// shape every adapter natively speaks (spec.md §4.1: "A Complete call is
// lowered to Chat with a single user message plus optional system
// message").
func (r CompletionRequest) AsChat() ChatRequest {
	return ChatRequest{
		Messages:         []ChatMessage{{Role: RoleUser, Content: r.Prompt}},
		SystemMessage:    r.SystemMessage,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		StopSequences:    r.StopSequences,
		Stream:           r.Stream,
		PreferredBackend: r.PreferredBackend,
	}
}

// Response is the neutral result shape returned by every Adapter, Backend
// Instance, and the Service itself (spec.md §3).
type Response struct {
	Success              bool
	Text                 string
	Backend              string
	Model                string
	DurationMs           int64
	PromptTokens         int
	CompletionTokens     int
	TotalTokens          int
	FinishReason         string
	ErrorMessage         string
	ErrorKind            ErrorKind
	AlternativeResponses []Response

	// TraceID is a uuid the Service generates for each Complete/Chat call
	// and sets on the response it returns. It is not passed to Backend
	// Instances or written to log lines by the core. Additive to spec.md's
	// data model — no invariant depends on it.
	TraceID string
}
