// Package llm wraps the two interchangeable chat-completion providers behind
// a single streaming interface.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopStream may be returned from a delta callback to abandon the rest of
// a stream. Complete then returns nil.
var ErrStopStream = errors.New("stop stream")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float64
}

// DeltaFunc receives streamed text in order.
type DeltaFunc func(delta string) error

type Provider interface {
	Name() string
	// RequiresSeed reports whether the conversation must open with a
	// non-empty user message.
	RequiresSeed() bool
	Complete(ctx context.Context, req Request, fn DeltaFunc) error
}

// New selects a provider by name. It is called once at startup.
func New(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropic(apiKey, baseURL), nil
	case "openai":
		return NewOpenAI(apiKey, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// emit forwards a delta and translates ErrStopStream into a clean stop.
func emit(fn DeltaFunc, delta string) (stop bool, err error) {
	if delta == "" {
		return false, nil
	}
	if err := fn(delta); err != nil {
		if errors.Is(err, ErrStopStream) {
			return true, nil
		}
		return true, err
	}
	return false, nil
}
