// Package tmdb is a minimal client for The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

type MovieDetails struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Runtime int    `json:"runtime"`
}

type searchResponse struct {
	Results []Movie `json:"results"`
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SearchMovies returns the search results for query in the service's order.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]Movie, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", c.apiKey)

	var out searchResponse
	found, err := c.get(ctx, "/search/movie?"+params.Encode(), &out)
	if err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	if !found {
		return nil, nil
	}
	return out.Results, nil
}

// MovieDetails fetches the detail record for id. It returns nil, nil when
// the movie does not exist.
func (c *Client) MovieDetails(ctx context.Context, id int) (*MovieDetails, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)

	var out MovieDetails
	found, err := c.get(ctx, "/movie/"+strconv.Itoa(id)+"?"+params.Encode(), &out)
	if err != nil {
		return nil, fmt.Errorf("movie details %d: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}
