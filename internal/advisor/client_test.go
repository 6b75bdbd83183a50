package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const testFEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

func TestAnalyseUsesGetWithQueryParams(t *testing.T) {
	var gotMethod, gotFEN, gotDepth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFEN = r.URL.Query().Get("fen")
		gotDepth = r.URL.Query().Get("depth")
		_ = json.NewEncoder(w).Encode(Advice{BestMove: "e7e5", Eval: -0.2, Depth: 8})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	advice, err := c.Analyse(context.Background(), testFEN, 8)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("method = %q, want GET", gotMethod)
	}
	if gotFEN != testFEN || gotDepth != "8" {
		t.Fatalf("query params: fen=%q depth=%q", gotFEN, gotDepth)
	}
	if advice.BestMove != "e7e5" || advice.Depth != 8 {
		t.Fatalf("unexpected advice: %+v", advice)
	}
}

func TestAnalyseDepthCapped(t *testing.T) {
	var gotDepth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDepth = r.URL.Query().Get("depth")
		_ = json.NewEncoder(w).Encode(Advice{BestMove: "e2e4"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithDepthCap(10))
	if _, err := c.Analyse(context.Background(), testFEN, 99); err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if gotDepth != "10" {
		t.Fatalf("depth = %q, want capped to 10", gotDepth)
	}
}

func TestAnalyseRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(Advice{BestMove: "g1f3"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetry(3))
	advice, err := c.Analyse(context.Background(), testFEN, 6)
	if err != nil {
		t.Fatalf("Analyse should succeed on retry: %v", err)
	}
	if advice.BestMove != "g1f3" || calls.Load() != 2 {
		t.Fatalf("advice=%+v calls=%d", advice, calls.Load())
	}
}

func TestAnalyseNotConfigured(t *testing.T) {
	c := NewClient("")
	if c.Enabled() {
		t.Fatalf("empty base URL should disable the client")
	}
	if _, err := c.Analyse(context.Background(), testFEN, 4); err == nil {
		t.Fatalf("expected error when not configured")
	}
}
