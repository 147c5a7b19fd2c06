// Package llm implements the Gemini REST client with the 503 model-fallback
// chain, rate-limit backoff, and usage accounting.
package llm

import (
	"fmt"
	"time"
)

// Wire shapes for the generateContent endpoint.

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content requestContent `json:"content"`
}

// usageMetadata reads both spellings the provider has shipped: the REST API
// reports totalTokenCount, the SDK surface totalTokens.
type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	TotalTokens          int `json:"totalTokens"`
}

func (u usageMetadata) total() int {
	if u.TotalTokenCount > 0 {
		return u.TotalTokenCount
	}
	return u.TotalTokens
}

// RawResponse is a successful generation result before validation.
type RawResponse struct {
	// Text is the first candidate's text payload, expected to be JSON.
	Text string
	// Model is the model that actually produced the response (it may
	// differ from the initially selected model after 503 fallbacks).
	Model string
	// TokensUsed is the total token count reported by the provider.
	TokensUsed   int
	PromptTokens int
	OutputTokens int
	Elapsed      time.Duration
}

// ErrorKind classifies request failures for the retry state machine.
type ErrorKind int

// Failure kinds, mirroring the error taxonomy: capacity and rate-limit are
// recovered locally, auth is fatal configuration, transient is retried
// within budget.
const (
	KindTransient ErrorKind = iota
	KindCapacity            // 503: model overloaded
	KindRateLimit           // 429
	KindTimeout
	KindAuth // 401/403: fatal
	KindFatal
)

// RequestError is a classified request failure.
type RequestError struct {
	Kind       ErrorKind
	StatusCode int
	Model      string
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm request to %s failed: HTTP %d: %s", e.Model, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm request to %s failed: %s", e.Model, e.Message)
}

// modelListResponse is the wire shape of the model-list endpoint.
type modelListResponse struct {
	Models []listedModel `json:"models"`
}

type listedModel struct {
	Name            string `json:"name"`
	DisplayName     string `json:"displayName"`
	Description     string `json:"description"`
	InputTokenLimit int    `json:"inputTokenLimit"`
}
