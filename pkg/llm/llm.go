// Package llm defines the text-generation and embedding capabilities the
// pipeline stages consume, plus an HTTP client for an Ollama-compatible server.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Request struct {
	Model         string
	Prompt        string
	Deterministic bool
	Structured    bool
}

// Response carries the raw model text and, for structured requests, the parsed object.
type Response struct {
	Text   string
	Object map[string]interface{}
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float64, error)
}

var (
	ErrTimeout         = errors.New("model call timed out")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrUnavailable     = errors.New("model service unavailable")
)

// PromptHash identifies a request for caching, fixtures and provenance.
func PromptHash(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%t\x00%t", req.Model, req.Prompt, req.Deterministic, req.Structured)
	return hex.EncodeToString(h.Sum(nil))
}

// Complete builds the response for req from raw model text, parsing it when
// structured output was requested.
func Complete(req Request, text string) (Response, error) {
	resp := Response{Text: text}
	if !req.Structured {
		return resp, nil
	}
	obj, err := ParseObject(text)
	if err != nil {
		return resp, err
	}
	resp.Object = obj
	return resp, nil
}

// ParseObject extracts a JSON object from model text, tolerating code fences
// and prose around the object.
func ParseObject(text string) (map[string]interface{}, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		obj = nil
		if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err == nil && obj != nil {
			return obj, nil
		}
	}
	if obj := lastObject(s); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedOutput)
}

// lastObject returns the last top-level object in s, so an answer wins over a
// template echoed before it. Walking back from the last brace, an object that
// parses replaces the current pick only when it encloses it.
func lastObject(s string) map[string]interface{} {
	var (
		best    map[string]interface{}
		bestEnd int64
	)
	for i := strings.LastIndex(s, "{"); i >= 0; i = strings.LastIndex(s[:i], "{") {
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err != nil || obj == nil {
			continue
		}
		end := int64(i) + dec.InputOffset()
		if best != nil && end < bestEnd {
			break
		}
		best, bestEnd = obj, end
	}
	return best
}

// Outcome classifies a call error for metrics and provenance.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
