package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"khedma/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.GeocoderConfig{
		BaseURL:   baseURL,
		UserAgent: "khedma-test",
		Timeout:   5 * time.Second,
		CacheTTL:  time.Minute,
	}, nil, nil)
}

func TestLookupFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Casablanca, Morocco" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"33.5731104","lon":"-7.5898434"}]`))
	}))
	defer srv.Close()

	point, found, err := newTestClient(srv.URL).Lookup(context.Background(), "Casablanca, Morocco")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if point.Lat < 33 || point.Lat > 34 || point.Lon > -7 || point.Lon < -8 {
		t.Fatalf("unexpected point: %+v", point)
	}
}

func TestLookupNotFoundIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, found, err := newTestClient(srv.URL).Lookup(context.Background(), "nowhere that exists")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL).Lookup(context.Background(), "Rabat")
	if err == nil {
		t.Fatal("expected an error on 502")
	}
}

func TestLookupEmptyAddress(t *testing.T) {
	if _, _, err := newTestClient("http://unused.invalid").Lookup(context.Background(), "  "); err == nil {
		t.Fatal("expected an error for empty address")
	}
}
