package tmdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchMovies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("path = %q, want /search/movie", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "Nosferatu" {
			t.Errorf("query = %q, want Nosferatu", got)
		}
		if got := r.URL.Query().Get("api_key"); got != "k" {
			t.Errorf("api_key = %q, want k", got)
		}
		json.NewEncoder(w).Encode(searchResponse{Results: []Movie{
			{ID: 426063, Title: "Nosferatu"},
			{ID: 653, Title: "Nosferatu"},
		}})
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL))
	got, err := c.SearchMovies(context.Background(), "Nosferatu")
	if err != nil {
		t.Fatalf("SearchMovies: %v", err)
	}
	if len(got) != 2 || got[0].ID != 426063 {
		t.Errorf("results = %+v", got)
	}
}

func TestMovieDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/426063":
			json.NewEncoder(w).Encode(MovieDetails{ID: 426063, Title: "Nosferatu", Runtime: 133})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL))

	d, err := c.MovieDetails(context.Background(), 426063)
	if err != nil {
		t.Fatalf("MovieDetails: %v", err)
	}
	if d == nil || d.Runtime != 133 {
		t.Errorf("details = %+v, want runtime 133", d)
	}

	missing, err := c.MovieDetails(context.Background(), 1)
	if err != nil {
		t.Fatalf("MovieDetails missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing = %+v, want nil", missing)
	}
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL))
	if _, err := c.SearchMovies(context.Background(), "x"); err == nil {
		t.Error("expected error on 500")
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("").Configured() {
		t.Error("empty key should not be configured")
	}
	if !NewClient("k").Configured() {
		t.Error("key should be configured")
	}
}
