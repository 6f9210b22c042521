package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "Cineworld, Leicester Square" {
			t.Errorf("address = %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"results": [
				{"formatted_address": "5 Leicester Square, London WC2H 7NA, UK"},
				{"formatted_address": "Leicester Square, London, UK"}
			]
		}`))
	}))
	defer server.Close()

	c := NewClient("secret", WithBaseURL(server.URL))
	got, err := c.Geocode(context.Background(), "Cineworld, Leicester Square")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if len(got) != 2 || got[0] != "5 Leicester Square, London WC2H 7NA, UK" {
		t.Errorf("got %q", got)
	}
}

func TestGeocodeZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer server.Close()

	got, err := NewClient("secret", WithBaseURL(server.URL)).Geocode(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %q, want empty", got)
	}
}

func TestGeocodeDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "bad key"}`))
	}))
	defer server.Close()

	if _, err := NewClient("secret", WithBaseURL(server.URL)).Geocode(context.Background(), "x"); err == nil {
		t.Error("expected error for REQUEST_DENIED")
	}
}

func TestNewClientWithoutKey(t *testing.T) {
	if c := NewClient(""); c != nil {
		t.Error("NewClient(\"\") should return nil")
	}
}
