package textproc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewRemoteValidatesURL(t *testing.T) {
	for _, bad := range []string{"", "not a url", "ftp://host/x", "/validate_audio_length", " https://host/x"} {
		if _, err := NewRemote(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	r, err := NewRemote("https://validator.example.com/validate_audio_length")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.URL() != "https://validator.example.com/validate_audio_length" {
		t.Errorf("unexpected URL %s", r.URL())
	}
}

func TestRemoteProcess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"validated_text": "short", "audio_length": 90})
	}))
	defer srv.Close()

	r, _ := NewRemote(srv.URL + "/validate_audio_length")
	out, err := r.Process(context.Background(), "a very long text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "short" {
		t.Errorf("expected 'short', got %q", out)
	}
	if gotBody["text"] != "a very long text" {
		t.Errorf("server received %v", gotBody)
	}
	if _, ok := gotBody["audio_length"]; ok {
		t.Error("audio_length should not be sent")
	}
}

func TestRemoteMissingFieldKeepsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"audio_length": 1}`))
	}))
	defer srv.Close()

	r, _ := NewRemote(srv.URL)
	out, err := r.Process(context.Background(), "keep me")
	if err != nil || out != "keep me" {
		t.Errorf("expected original text, got %q, %v", out, err)
	}
}

func TestRemoteErrors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		r, _ := NewRemote(srv.URL)
		_, err := r.Process(context.Background(), "text")
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected StatusError 502, got %v", err)
		}
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Error("StatusError should match ErrUpstreamUnavailable")
		}
	})

	t.Run("bad json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		r, _ := NewRemote(srv.URL)
		if _, err := r.Process(context.Background(), "text"); !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		r, _ := NewRemote(url)
		if _, err := r.Process(context.Background(), "text"); !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}

func TestGateFallsBack(t *testing.T) {
	t.Run("processor error", func(t *testing.T) {
		g := NewGate(Func(func(context.Context, string) (string, error) {
			return "", ErrUpstreamUnavailable
		}))
		if out := g.Apply(context.Background(), "original"); out != "original" {
			t.Errorf("expected original, got %q", out)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(block)

		r, _ := NewRemote(srv.URL)
		g := NewGate(r, WithTimeout(50*time.Millisecond))

		start := time.Now()
		out := g.Apply(context.Background(), "original")
		if out != "original" {
			t.Errorf("expected original, got %q", out)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("gate did not honor timeout, took %v", elapsed)
		}
	})

	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		r, _ := NewRemote(srv.URL)
		if out := NewGate(r).Apply(context.Background(), "original"); out != "original" {
			t.Errorf("expected original, got %q", out)
		}
	})
}

func TestGateUsesProcessedText(t *testing.T) {
	g := NewGate(Func(func(_ context.Context, text string) (string, error) {
		return "trimmed", nil
	}), WithPreview(3))
	if out := g.Apply(context.Background(), "a long reply"); out != "trimmed" {
		t.Errorf("expected trimmed, got %q", out)
	}
}

func TestGateNilProcessor(t *testing.T) {
	if out := NewGate(nil).Apply(context.Background(), "x"); out != "x" {
		t.Errorf("expected x, got %q", out)
	}
}
