package entitlement

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestSite(t *testing.T, active bool, uses int) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/subscription"):
			fmt.Fprintf(w, `{"active": %t}`, active)
		case strings.HasSuffix(r.URL.Path, "/packages"):
			fmt.Fprintf(w, `{"remaining_uses": %d}`, uses)
		case r.URL.Path == "/api/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCheckCombinesSources(t *testing.T) {
	cases := []struct {
		active  bool
		uses    int
		allowed bool
	}{
		{false, 0, false},
		{true, 0, true},
		{false, 2, true},
		{true, 3, true},
	}
	for _, tc := range cases {
		c := newTestSite(t, tc.active, tc.uses)
		snap, err := c.Check(context.Background(), 42)
		if err != nil {
			t.Fatalf("check (active=%t uses=%d): %v", tc.active, tc.uses, err)
		}
		if snap.HasSubscription != tc.active || snap.PackageUses != tc.uses {
			t.Fatalf("snapshot = %+v", snap)
		}
		if snap.Allowed() != tc.allowed {
			t.Fatalf("allowed(active=%t uses=%d) = %t", tc.active, tc.uses, snap.Allowed())
		}
	}
}

func TestCheckPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Check(context.Background(), 42); err == nil {
		t.Fatal("expected error from failing site api")
	}
}

func TestHealthy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ok.Close)
	healthy, err := NewClient(ok.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !healthy.Healthy(context.Background()) {
		t.Fatal("healthy endpoint reported unhealthy")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	unhealthy, err := NewClient(down.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if unhealthy.Healthy(context.Background()) {
		t.Fatal("failing endpoint reported healthy")
	}
}

func TestWebviewURL(t *testing.T) {
	c, err := NewClient("https://site.test", "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got := c.WebviewURL("handbook", 42)
	if got != "https://site.test/handbook?user_id=42" {
		t.Fatalf("handbook url = %q", got)
	}
	if got := c.WebviewURL("nonsense", 0); got != "https://site.test" {
		t.Fatalf("fallback url = %q", got)
	}
}
