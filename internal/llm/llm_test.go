package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/logging"
)

func anthropicSSE(deltas ...string) string {
	var b strings.Builder
	b.WriteString("event: message_start\n")
	b.WriteString(`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"test-model","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n")
	b.WriteString("event: content_block_start\n")
	b.WriteString(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n")
	for _, d := range deltas {
		payload, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": d},
		})
		fmt.Fprintf(&b, "event: content_block_delta\ndata: %s\n\n", payload)
	}
	b.WriteString("event: content_block_stop\n")
	b.WriteString(`data: {"type":"content_block_stop","index":0}` + "\n\n")
	b.WriteString("event: message_delta\n")
	b.WriteString(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}` + "\n\n")
	b.WriteString("event: message_stop\n")
	b.WriteString(`data: {"type":"message_stop"}` + "\n\n")
	return b.String()
}

func openaiSSE(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": d}, "finish_reason": nil}},
		})
		fmt.Fprintf(&b, "data: %s\n\n", payload)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func sseServer(t *testing.T, wantPath, body string, check func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("expected path %s, got %s", wantPath, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
}

func sampleRequest() Request {
	temp := 0.2
	return Request{
		System:      "you are an interviewer",
		Messages:    []Message{{Role: RoleUser, Content: "Hi"}},
		Model:       "test-model",
		MaxTokens:   100,
		Temperature: &temp,
	}
}

func collect(p Provider, req Request) (string, error) {
	var sb strings.Builder
	err := p.Complete(context.Background(), req, func(d string) error {
		sb.WriteString(d)
		return nil
	})
	return sb.String(), err
}

func TestAnthropic_Stream(t *testing.T) {
	server := sseServer(t, "/v1/messages", anthropicSSE("What motivated ", "you to learn?"), func(req map[string]any) {
		if req["model"] != "test-model" {
			t.Errorf("expected model test-model, got %v", req["model"])
		}
		if req["stream"] != true {
			t.Errorf("expected stream true, got %v", req["stream"])
		}
		if req["max_tokens"] != float64(100) {
			t.Errorf("expected max_tokens 100, got %v", req["max_tokens"])
		}
		system, _ := json.Marshal(req["system"])
		if !strings.Contains(string(system), "you are an interviewer") {
			t.Errorf("expected system prompt, got %s", system)
		}
	})
	defer server.Close()

	p := NewAnthropic("test-key", server.URL)
	if !p.RequiresSeed() {
		t.Error("anthropic requires a seed user turn")
	}

	got, err := collect(p, sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "What motivated you to learn?" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestAnthropic_StopStream(t *testing.T) {
	server := sseServer(t, "/v1/messages", anthropicSSE("one ", "two ", "three"), nil)
	defer server.Close()

	var seen []string
	err := NewAnthropic("test-key", server.URL).Complete(context.Background(), sampleRequest(), func(d string) error {
		seen = append(seen, d)
		if len(seen) == 2 {
			return ErrStopStream
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stop should not be an error, got %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("expected consumption to stop after 2 deltas, got %v", seen)
	}
}

func TestAnthropic_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "max_tokens is too large"},
		})
	}))
	defer server.Close()

	if _, err := collect(NewAnthropic("test-key", server.URL), sampleRequest()); err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestOpenAI_Stream(t *testing.T) {
	server := sseServer(t, "/chat/completions", openaiSSE("What motivated ", "you?"), func(req map[string]any) {
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("expected system + user messages, got %v", req["messages"])
		}
		first, _ := msgs[0].(map[string]any)
		if first["role"] != "system" {
			t.Errorf("expected system message first, got %v", first["role"])
		}
		if req["max_completion_tokens"] != float64(100) {
			t.Errorf("expected max_completion_tokens 100, got %v", req["max_completion_tokens"])
		}
	})
	defer server.Close()

	p := NewOpenAI("test-key", server.URL)
	if p.RequiresSeed() {
		t.Error("openai does not need a seed turn")
	}
	got, err := collect(p, sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "What motivated you?" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestOpenAI_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := collect(NewOpenAI("test-key", server.URL), sampleRequest()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"anthropic", "openai"} {
		p, err := New(name, "k", "")
		if err != nil || p.Name() != name {
			t.Errorf("New(%q) = %v, %v", name, p, err)
		}
	}
	if _, err := New("gemini", "k", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

type scriptedProvider struct {
	calls  int
	script []func(DeltaFunc) error
}

func (s *scriptedProvider) Name() string       { return "scripted" }
func (s *scriptedProvider) RequiresSeed() bool { return false }
func (s *scriptedProvider) Complete(_ context.Context, _ Request, fn DeltaFunc) error {
	step := s.script[s.calls]
	s.calls++
	return step(fn)
}

func fail(fn DeltaFunc) error { return errors.New("connection reset") }

func newRetrying(p Provider, retries int) (*Retrying, *[]time.Duration) {
	var waits []time.Duration
	r := WithRetry(p, retries, 10*time.Millisecond, logging.Discard()).(*Retrying)
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetry_RecoversBeforeFirstDelta(t *testing.T) {
	p := &scriptedProvider{script: []func(DeltaFunc) error{
		fail,
		fail,
		func(fn DeltaFunc) error { return fn("ok") },
	}}
	r, waits := newRetrying(p, 3)

	got, err := collect(r, Request{})
	if err != nil || got != "ok" {
		t.Fatalf("expected recovery, got %q, %v", got, err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*waits) != 2 || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Errorf("expected exponential waits %v, got %v", want, *waits)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	p := &scriptedProvider{script: []func(DeltaFunc) error{fail, fail, fail}}
	r, _ := newRetrying(p, 2)

	if _, err := collect(r, Request{}); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if p.calls != 3 {
		t.Errorf("expected 1 call + 2 retries, got %d", p.calls)
	}
}

func TestRetry_NoRetryAfterStreaming(t *testing.T) {
	p := &scriptedProvider{script: []func(DeltaFunc) error{
		func(fn DeltaFunc) error {
			_ = fn("partial")
			return errors.New("stream broke")
		},
		func(fn DeltaFunc) error { return fn("should not run") },
	}}
	r, _ := newRetrying(p, 3)

	if _, err := collect(r, Request{}); err == nil {
		t.Fatal("expected mid-stream error to surface")
	}
	if p.calls != 1 {
		t.Errorf("expected no retry after text was streamed, got %d calls", p.calls)
	}
}

func TestWithRetry_ZeroIsIdentity(t *testing.T) {
	p := &scriptedProvider{}
	if WithRetry(p, 0, time.Second, logging.Discard()) != Provider(p) {
		t.Error("expected the provider unchanged when retries are off")
	}
}
