package registry

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/overlaymesh/ronet/internal/bus"
	"github.com/overlaymesh/ronet/internal/obs"
)

func TestCommitRejectsMissingPrefix(t *testing.T) {
	s := NewStore()
	_, err := s.Commit("not-a-hash")
	if err != ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestCommitBumpsVersionMonotonically(t *testing.T) {
	s := NewStore()
	h1, err := s.Commit("b3:aaa")
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	h2, err := s.Commit("b3:bbb")
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	if h1.Version != 1 || h2.Version != 2 {
		t.Fatalf("expected versions 1,2, got %d,%d", h1.Version, h2.Version)
	}
	if s.Head().PayloadB3 != "b3:bbb" {
		t.Fatalf("expected head to reflect latest commit")
	}
}

func newTestServer(t *testing.T) (chi.Router, *bus.Bus) {
	t.Helper()
	store := NewStore()
	b := bus.New(16, nil)
	srv := NewServer(store, b, Config{Heartbeat: 20 * time.Millisecond, Metrics: obs.NewMetrics()})
	r := chi.NewRouter()
	srv.Mount(r)
	return r, b
}

func TestHTTPHeadReturnsCurrentState(t *testing.T) {
	r, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/registry/head", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var head Head
	if err := json.Unmarshal(rec.Body.Bytes(), &head); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if head.Version != 0 {
		t.Fatalf("expected version 0 before any commit, got %d", head.Version)
	}
}

func TestHTTPCommitValidatesPrefix(t *testing.T) {
	r, _ := newTestServer(t)
	body := strings.NewReader(`{"payload_b3":"sha256:bad"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registry/commit", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-b3 payload, got %d", rec.Code)
	}
}

func TestHTTPCommitSucceedsAndBumpsHead(t *testing.T) {
	r, _ := newTestServer(t)
	body := strings.NewReader(`{"payload_b3":"b3:deadbeef"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/registry/commit", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var head Head
	if err := json.Unmarshal(rec.Body.Bytes(), &head); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if head.Version != 1 || head.PayloadB3 != "b3:deadbeef" {
		t.Fatalf("unexpected head %+v", head)
	}
}

func TestSSEStreamDeliversCommittedHead(t *testing.T) {
	store := NewStore()
	b := bus.New(16, nil)
	srv := NewServer(store, b, Config{Heartbeat: time.Hour, Metrics: obs.NewMetrics()})
	r := chi.NewRouter()
	srv.Mount(r)

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/registry/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	time.Sleep(20 * time.Millisecond) // let the subscription register

	commitRec := httptest.NewRecorder()
	r.ServeHTTP(commitRec, httptest.NewRequest(http.MethodPost, "/registry/commit", strings.NewReader(`{"payload_b3":"b3:feedface"}`)))
	if commitRec.Code != http.StatusOK {
		t.Fatalf("commit via HTTP: %d", commitRec.Code)
	}

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			var head Head
			if err := json.Unmarshal([]byte(strings.TrimSpace(line[len("data: "):])), &head); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if head.PayloadB3 != "b3:feedface" {
				t.Fatalf("unexpected event payload %+v", head)
			}
			return
		}
	}
	t.Fatalf("did not observe committed head over SSE before deadline")
}
