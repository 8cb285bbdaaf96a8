// Package gemini adapts the neutral request/response model to Google's
// Gemini generateContent API (spec.md §4.1). Two deployment variants are
// supported: AI Studio (`/v1beta/models/{model}:generateContent?key=...`)
// and Vertex AI (`/v1/projects/{ProjectId}/locations/{Location}/publishers
// /google/models/{model}:generateContent`, selected when ProjectId and
// Location are both set).
//
// Grounded on the teacher's llm/providers/gemini.GeminiProvider: the
// geminiContent/geminiPart/geminiRequest/geminiResponse wire shapes, role
// rewriting (assistant -> model), and system-message extraction into a
// dedicated field — here resolved as spec.md Open Question 3 requires,
// emitting systemInstruction rather than folding system text into the
// first user turn (matching the teacher's own convertToGeminiContents
// behavior). The teacher authenticates via an x-goog-api-key header; this
// adapter instead follows spec.md's explicit AI Studio wire contract of a
// `?key=` query parameter, since spec.md is the authoritative contract
// here — documented as a deliberate deviation in DESIGN.md.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
)

// Provider is the Gemini adapter.
type Provider struct {
	baseURL   string
	apiKey    string
	model     string
	projectId string
	location  string
	client    *http.Client
	logger    *zap.Logger
}

// New builds a Gemini adapter. When projectId and location are both
// non-empty, requests target Vertex AI instead of AI Studio.
func New(baseURL, apiKey, model, projectId, location string, timeout time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		projectId: projectId,
		location:  location,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (p *Provider) endpoint(action string) string {
	if p.projectId != "" && p.location != "" {
		return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
			p.baseURL, p.projectId, p.location, p.model, action)
	}
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", p.baseURL, p.model, action, p.apiKey)
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// convertToGeminiContents rewrites the neutral message list into Gemini's
// contents shape, extracting any system text into a separate
// systemInstruction value (spec.md Open Question 3, resolved in favor of
// systemInstruction).
func convertToGeminiContents(messages []types.ChatMessage, fallbackSystem string) (contents []geminiContent, system *geminiContent) {
	systemText, rest := adapters.ExtractSystemMessage(messages, fallbackSystem)
	if systemText != "" {
		system = &geminiContent{Parts: []geminiPart{{Text: systemText}}}
	}
	contents = make([]geminiContent, 0, len(rest))
	for _, m := range rest {
		role := string(m.Role)
		if role == string(types.RoleAssistant) {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return contents, system
}

// IsAvailable issues a minimal generateContent request; per spec.md §4.1,
// 2xx or a 4xx validation error both count as available.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	resp := p.Chat(ctx, types.ChatRequest{Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "ping"}}})
	if resp.Success {
		return true
	}
	switch resp.ErrorKind {
	case types.ErrorKindAuth, types.ErrorKindServerError, types.ErrorKindNetwork, types.ErrorKindTimeout:
		return false
	default:
		return true
	}
}

// Complete lowers to Chat.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	return p.Chat(ctx, req.AsChat())
}

// Chat implements the neutral Chat operation against generateContent.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	contents, systemInstruction := convertToGeminiContents(req.Messages, req.SystemMessage)

	body := geminiRequest{
		Contents:          contents,
		SystemInstruction: systemInstruction,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopSequences,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("generateContent"), bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return adapters.FailResponse(types.ErrorKindTimeout, ctx.Err().Error())
		}
		if ctx.Err() != nil {
			return adapters.FailResponse(types.ErrorKindCancelled, ctx.Err().Error())
		}
		return adapters.FailResponse(types.ErrorKindNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	var wr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}
	if len(wr.Candidates) == 0 {
		return adapters.FailResponse(types.ErrorKindDeserialization, "response contained no candidates")
	}

	var text strings.Builder
	for _, part := range wr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	r := types.Response{
		Success:      true,
		Text:         text.String(),
		Model:        p.model,
		FinishReason: wr.Candidates[0].FinishReason,
	}
	if wr.UsageMetadata != nil {
		r.PromptTokens = wr.UsageMetadata.PromptTokenCount
		r.CompletionTokens = wr.UsageMetadata.CandidatesTokenCount
		r.TotalTokens = wr.UsageMetadata.TotalTokenCount
	}
	return r
}
