// Package easynmt adapts the neutral request/response model to an EasyNMT
// translation server (spec.md §4.1): POST /translate, falling back to
// GET /translate?... on a 4xx response; the response body is either
// {"translation": "..."} or a bare JSON string. Chat is implemented by
// extracting the last user message as the text to translate, failing with
// BadRequest if no user message exists. GetLanguagePairs exposes the
// server's supported (source, target) language pairs.
package easynmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/polyglotai/router/types"
	"github.com/polyglotai/router/adapters"
)

// Provider is the EasyNMT adapter.
type Provider struct {
	baseURL    string
	targetLang string
	sourceLang string
	client     *http.Client
	logger     *zap.Logger
}

// New builds an EasyNMT adapter. targetLang is required; sourceLang may be
// empty to let the server auto-detect.
func New(baseURL, targetLang, sourceLang string, timeout time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{baseURL: baseURL, targetLang: targetLang, sourceLang: sourceLang, client: &http.Client{Timeout: timeout}, logger: logger}
}

// IsAvailable issues a minimal translate request; 2xx or 4xx both count as
// available, per spec.md §4.1.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	resp := p.translate(ctx, "ping")
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

// Complete translates the prompt directly.
func (p *Provider) Complete(ctx context.Context, req types.CompletionRequest) types.Response {
	return p.translate(ctx, req.Prompt)
}

// Chat extracts the last user message and translates it, per spec.md §4.1.
func (p *Provider) Chat(ctx context.Context, req types.ChatRequest) types.Response {
	text, ok := adapters.LastUserMessage(req.Messages)
	if !ok {
		return adapters.FailResponse(types.ErrorKindBadRequest, "No user message")
	}
	return p.translate(ctx, text)
}

type translateRequestBody struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

// translateResponse is the object response shape, carrying either a
// "translated" array or a "translation" string field. The other documented
// shape, a bare JSON string, is decoded separately by decodeTranslateBody
// before this type is tried.
type translateResponse struct {
	Translated []string `json:"translated"`
	Translation string  `json:"translation"`
}

func (p *Provider) translate(ctx context.Context, text string) types.Response {
	body := translateRequestBody{Text: []string{text}, TargetLang: p.targetLang, SourceLang: p.sourceLang}
	payload, err := json.Marshal(body)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Fall back to the GET form on a 4xx, per spec.md §4.1.
		resp.Body.Close()
		return p.translateGet(ctx, text)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	return decodeTranslateBody(resp)
}

func (p *Provider) translateGet(ctx context.Context, text string) types.Response {
	q := url.Values{}
	q.Set("text", text)
	q.Set("target_lang", p.targetLang)
	if p.sourceLang != "" {
		q.Set("source_lang", p.sourceLang)
	}
	fullURL := fmt.Sprintf("%s/translate?%s", p.baseURL, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return adapters.FailResponse(types.ErrorKindNetwork, "failed to build request: "+err.Error())
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := adapters.ReadErrorMessage(resp.Body)
		return adapters.FailResponse(adapters.MapHTTPError(resp.StatusCode, msg), msg)
	}

	return decodeTranslateBody(resp)
}

func decodeTranslateBody(resp *http.Response) types.Response {
	raw := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		raw = append(raw, buf[:n]...)
		if err != nil {
			break
		}
	}

	// Try the bare-string shape first.
	var bare string
	if json.Unmarshal(raw, &bare) == nil {
		return types.Response{Success: true, Text: bare}
	}

	var wr translateResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return adapters.FailResponse(types.ErrorKindDeserialization, "failed to decode response: "+err.Error())
	}
	if wr.Translation != "" {
		return types.Response{Success: true, Text: wr.Translation}
	}
	if len(wr.Translated) > 0 {
		return types.Response{Success: true, Text: wr.Translated[0]}
	}
	return adapters.FailResponse(types.ErrorKindDeserialization, "translate response contained no translation")
}

// LanguagePair is one (source, target) pair the server supports.
type LanguagePair struct {
	Source string
	Target string
}

// GetLanguagePairs queries the server's supported language pairs (spec.md
// §4.1: "Also exposes GetLanguagePairs() -> [(src,tgt)]").
func (p *Provider) GetLanguagePairs(ctx context.Context) ([]LanguagePair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/get_languages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var langs map[string][]string // source -> list of supported targets
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		return nil, err
	}

	var pairs []LanguagePair
	for source, targets := range langs {
		for _, target := range targets {
			pairs = append(pairs, LanguagePair{Source: source, Target: target})
		}
	}
	return pairs, nil
}

func classifyTransportErr(ctx context.Context, err error) types.Response {
	if ctx.Err() == context.DeadlineExceeded {
		return adapters.FailResponse(types.ErrorKindTimeout, ctx.Err().Error())
	}
	if ctx.Err() != nil {
		return adapters.FailResponse(types.ErrorKindCancelled, ctx.Err().Error())
	}
	return adapters.FailResponse(types.ErrorKindNetwork, err.Error())
}
