package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/wxalerts/internal/alert"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New("", "", 0)
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.userAgent != DefaultUserAgent {
		t.Errorf("userAgent = %q", c.userAgent)
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", c.httpClient.Timeout)
	}
}

func TestFetchSnapshot(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile("testdata/active_alerts.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts/active" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("zone"); got != "KYC067" {
			t.Errorf("zone = %q, want KYC067", got)
		}
		if r.Header.Get("User-Agent") != "wxalerts-test/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept") != "application/geo+json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "wxalerts-test/1.0", 5*time.Second)
	snap, err := c.FetchSnapshot(context.Background(), "KYC067")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}

	if len(snap.Alerts) != 2 {
		t.Fatalf("len(Alerts) = %d, want 2", len(snap.Alerts))
	}
	a := snap.Alerts[0]
	if a.ID != "urn:oid:2.49.0.1.840.0.a1" || a.Severity != alert.SeveritySevere {
		t.Errorf("alert[0] = %+v", a)
	}
	if a.SenderName != "NWS Louisville KY" || a.AreaDesc != "Fayette" {
		t.Errorf("alert[0] sender/area = %q / %q", a.SenderName, a.AreaDesc)
	}
	if a.Onset.IsZero() || a.Ends.IsZero() {
		t.Error("expected onset and ends to be parsed")
	}
	if !snap.Alerts[1].Ends.IsZero() {
		t.Error("null ends should stay zero")
	}

	if len(snap.Rejected) != 2 {
		t.Fatalf("len(Rejected) = %d, want 2", len(snap.Rejected))
	}
	if snap.Rejected[0].ID != "urn:oid:2.49.0.1.840.0.c1" {
		t.Errorf("rejected[0].ID = %q", snap.Rejected[0].ID)
	}
	if !errors.Is(snap.Rejected[1], alert.ErrMalformed) {
		t.Errorf("rejected[1] = %v, want ErrMalformed", snap.Rejected[1])
	}
	if snap.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetchSnapshot_EmptyCollection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	snap, err := New(srv.URL, "", time.Second).FetchSnapshot(context.Background(), "AZC009")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(snap.Alerts) != 0 || len(snap.Rejected) != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestFetchSnapshot_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"title":"Bad Request","detail":"Parameter \"zone\" is invalid"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).FetchSnapshot(context.Background(), "bogus")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", fe.StatusCode)
	}
	if fe.Message != `Parameter "zone" is invalid` {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestFetchSnapshot_StatusWithoutProblemBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).FetchSnapshot(context.Background(), "KYC067")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Message != "Service Unavailable" {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestFetchSnapshot_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "", time.Second).FetchSnapshot(context.Background(), "KYC067")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != 0 || fe.Err == nil {
		t.Errorf("FetchError = %+v, want transport error", fe)
	}
}

func TestFetchSnapshot_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).FetchSnapshot(context.Background(), "KYC067")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	// one ASCII byte shifts every two-byte rune onto an odd offset
	in := "x" + strings.Repeat("é", maxMessageLen)
	got := truncate(in)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) > maxMessageLen {
		t.Errorf("len = %d, want <= %d", len(got), maxMessageLen)
	}
	if len(got) < maxMessageLen-1 {
		t.Errorf("len = %d, cut more than one rune", len(got))
	}
	if truncate("short") != "short" {
		t.Error("short input changed")
	}
}
