package qualtrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	c := NewClient("qt-token", "SV_123", "illinois", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	c.apiURL = serverURL
	c.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return c
}

func TestNewClient_DatacenterURL(t *testing.T) {
	c := NewClient("t", "SV_1", "illinois", slog.Default())
	want := "https://illinois.qualtrics.com/API/v3/surveys/SV_1/responses/R_abc"
	if got := c.responseURL("R_abc"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestValidResponseID(t *testing.T) {
	cases := map[string]bool{
		"R_1a2B3c":    true,
		"R_":          false,
		"testaccount": false,
		"R_abc/../x":  false,
		"":            false,
	}
	for id, want := range cases {
		if got := ValidResponseID(id); got != want {
			t.Errorf("ValidResponseID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestMarkComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/surveys/SV_123/responses/R_abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer qt-token" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}

		var body struct {
			EmbeddedData map[string]string `json:"embeddedData"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.EmbeddedData["ChatbotCompleted"] != "1" {
			t.Errorf("expected completed flag, got %v", body.EmbeddedData)
		}
		if body.EmbeddedData["ChatbotCompletionTimestamp"] != "2026-03-01T09:30:00Z" {
			t.Errorf("unexpected timestamp %q", body.EmbeddedData["ChatbotCompletionTimestamp"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"meta":{"httpStatus":"200 - OK"}}`))
	}))
	defer server.Close()

	if err := testClient(server.URL).MarkComplete(context.Background(), "R_abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkComplete_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := testClient(server.URL).MarkComplete(context.Background(), "R_missing")
	if !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("expected ErrResponseNotFound, got %v", err)
	}
}

func TestMarkComplete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"meta":{"error":"boom"}}`))
	}))
	defer server.Close()

	err := testClient(server.URL).MarkComplete(context.Background(), "R_abc")
	if err == nil || errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("expected generic error for 500, got %v", err)
	}
}

func TestMarkComplete_InvalidID(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	err := testClient(server.URL).MarkComplete(context.Background(), "testaccount")
	if !errors.Is(err, ErrInvalidResponseID) {
		t.Fatalf("expected ErrInvalidResponseID, got %v", err)
	}
	if called {
		t.Error("no request should be made for an invalid id")
	}
}

func TestVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path == "/surveys/SV_123/responses/R_known" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testClient(server.URL)
	if err := c.Verify(context.Background(), "R_known"); err != nil {
		t.Errorf("expected known response verified, got %v", err)
	}
	if err := c.Verify(context.Background(), "R_unknown"); !errors.Is(err, ErrResponseNotFound) {
		t.Errorf("expected ErrResponseNotFound, got %v", err)
	}
}
