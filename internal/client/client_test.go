package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.BuildToken = token

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return c
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		token     string
		buildSpec string
		want      string
	}{
		{
			name:      "root base",
			base:      "https://mybinder.org/",
			buildSpec: "gh/org/repo/HEAD",
			want:      "https://mybinder.org/build/gh/org/repo/HEAD",
		},
		{
			name:      "prefixed base",
			base:      "https://host/services/binder/",
			buildSpec: "gh/org/repo/main",
			want:      "https://host/services/binder/build/gh/org/repo/main",
		},
		{
			name:      "base without trailing slash resolves like a browser",
			base:      "https://host/binder",
			buildSpec: "gh/org/repo/main",
			want:      "https://host/build/gh/org/repo/main",
		},
		{
			name:      "escaped git spec is kept",
			base:      "https://host/",
			buildSpec: "git/https%3A%2F%2Fexample.org%2Frepo.git/main",
			want:      "https://host/build/git/https%3A%2F%2Fexample.org%2Frepo.git/main",
		},
		{
			name:      "build token",
			base:      "https://host/",
			token:     "secret",
			buildSpec: "gh/org/repo/main",
			want:      "https://host/build/gh/org/repo/main?build_token=secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.base, tt.token)

			got, err := c.BuildURL(tt.buildSpec)
			if err != nil {
				t.Fatal(err)
			}

			if got.String() != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"not a url/", "relative/path/", "://x"} {
		cfg := DefaultConfig()
		cfg.BaseURL = base

		if _, err := New(cfg); err == nil {
			t.Errorf("expected error for base %q", base)
		}
	}
}

func TestOpen_StreamsEvents(t *testing.T) {
	var gotAccept, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.Path

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		_, _ = fmt.Fprint(w, ":heartbeat\n\n")
		_, _ = fmt.Fprint(w, "data: {\"phase\": \"waiting\"}\n\n")
		_, _ = fmt.Fprint(w, "event: message\ndata: {\"phase\": \"building\", \"message\": \"Step 1/5\\n\"}\n\n")
		_, _ = fmt.Fprint(w, "data: not json\n\n")
		flusher.Flush()
		_, _ = fmt.Fprint(w, "data: {\"phase\": \"ready\", \"url\": \"https://host/\", \"token\": \"abc\", \"imageName\": \"img:1\"}\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", "")

	stream, err := c.Open(context.Background(), "gh/org/repo/HEAD")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	defer func() {
		_ = stream.Close()
	}()

	var events []Event

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}

		events = append(events, ev)
	}

	if gotAccept != "text/event-stream" {
		t.Errorf("expected event-stream accept header, got %q", gotAccept)
	}

	if gotPath != "/build/gh/org/repo/HEAD" {
		t.Errorf("unexpected request path %q", gotPath)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	if _, ok := events[0].Text(); ok {
		t.Error("waiting event should carry no message")
	}

	if msg, ok := events[1].Text(); !ok || msg != "Step 1/5\n" {
		t.Errorf("unexpected message %q (present=%v)", msg, ok)
	}

	ready := events[2]
	if ready.Phase != "ready" || ready.URL != "https://host/" || ready.Token != "abc" || ready.ImageName != "img:1" {
		t.Errorf("unexpected ready event %+v", ready)
	}
}

func TestOpen_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such provider", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", "")

	_, err := c.Open(context.Background(), "xx/org/repo/HEAD")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}

	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", statusErr.StatusCode)
	}

	if !strings.Contains(statusErr.Error(), "no such provider") {
		t.Errorf("expected body in error, got %q", statusErr.Error())
	}
}

func TestOpen_BuildToken(t *testing.T) {
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("build_token")
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", "s3cret")

	stream, err := c.Open(context.Background(), "gh/org/repo/HEAD")
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		_ = stream.Close()
	}()

	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF on empty stream, got %v", err)
	}

	if gotToken != "s3cret" {
		t.Errorf("expected build token to be sent, got %q", gotToken)
	}
}

func TestStream_CloseUnblocksNext(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()

		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL+"/", "")

	stream, err := c.Open(context.Background(), "gh/org/repo/HEAD")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)

	go func() {
		_, err := stream.Next()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)

	if err := stream.Close(); err != nil {
		t.Logf("Close() returned %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected EOF after Close, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Close")
	}

	// second close is a no-op
	_ = stream.Close()
}

func TestRedactToken(t *testing.T) {
	u, _ := url.Parse("https://host/build/gh/a/b/HEAD?build_token=secret")
	if got := redactToken(u); strings.Contains(got, "secret") {
		t.Errorf("token leaked in %q", got)
	}
}
